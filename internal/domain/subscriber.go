package domain

import "time"

// Subscriber status values
const (
	SubscriberStatusNormal   = "normal"
	SubscriberStatusIsolated = "isolated"
)

// Subscriber connection types selecting the isolir enforcement mechanism
const (
	ConnectionTypePppoe  = "pppoe"
	ConnectionTypeStatic = "static"
)

// Subscriber is the per-customer network access state consumed by the isolir
// engine. Billing facts (invoices, overdue amounts) live in the external
// billing system; only the access-control projection is kept here.
type Subscriber struct {
	ID                int64      `json:"id,string" form:"id"`
	CustomerId        int64      `gorm:"index" json:"customer_id,string" form:"customer_id"` // External billing customer ID
	Username          string     `gorm:"uniqueIndex" json:"username" form:"username"`        // PPPoE / RADIUS username
	Realname          string     `json:"realname" form:"realname"`
	Mobile            string     `json:"mobile" form:"mobile"`                                  // Notification target
	Status            string     `gorm:"index" json:"status" form:"status"`                     // normal | isolated
	EnableIsolir      bool       `json:"enable_isolir" form:"enable_isolir"`                    // Scheduled isolation armed
	IsolirDate        *time.Time `json:"isolir_date" form:"isolir_date"`                        // Scheduled isolation date
	ConnectionType    string     `json:"connection_type" form:"connection_type"`                // pppoe | static
	StaticIp          string     `json:"static_ip" form:"static_ip"`                            // For static subscribers
	PackageId         int64      `gorm:"index" json:"package_id,string" form:"package_id"`      // Current billing package
	PreviousPackageId int64      `json:"previous_package_id,string" form:"previous_package_id"` // Remembered across isolation
	NasId             int64      `gorm:"index" json:"nas_id,string" form:"nas_id"`              // Router enforcing this subscriber
	Remark            string     `json:"remark" form:"remark"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName Specify table name
func (Subscriber) TableName() string {
	return "subscriber"
}

// Isolated reports whether the subscriber is currently suspended
func (s *Subscriber) Isolated() bool {
	return s.Status == SubscriberStatusIsolated
}

// Package service package; the PPPoE profile and RADIUS group derive from it
type Package struct {
	ID           int64     `json:"id,string" form:"id"`
	Name         string    `gorm:"index" json:"name" form:"name"`
	PppoeProfile string    `json:"pppoe_profile" form:"pppoe_profile"` // RouterOS PPP profile name
	GroupName    string    `json:"group_name" form:"group_name"`       // RADIUS group name
	RateLimit    string    `json:"rate_limit" form:"rate_limit"`       // Mikrotik-Rate-Limit value, e.g. "10M/10M"
	Price        float64   `json:"price" form:"price"`
	Remark       string    `json:"remark" form:"remark"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Package) TableName() string {
	return "package"
}
