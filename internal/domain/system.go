package domain

import (
	"time"
)

type SysConfig struct {
	ID        int64     `json:"id,string"   form:"id"`
	Sort      int       `json:"sort"  form:"sort"`
	Type      string    `gorm:"index" json:"type" form:"type"`
	Name      string    `gorm:"index" json:"name" form:"name"`
	Value     string    `json:"value" form:"value"`
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SysConfig) TableName() string {
	return "sys_config"
}

// IsolirLog action values
const (
	IsolirActionIsolir   = "isolir"
	IsolirActionUnisolir = "unisolir"
)

// IsolirLog result values
const (
	IsolirResultSuccess = "success"
	IsolirResultSkipped = "skipped"
	IsolirResultFailed  = "failed"
)

// IsolirLog audit row for every suspend/restore transition, successful or not
type IsolirLog struct {
	ID           int64     `json:"id,string"`
	SubscriberId int64     `gorm:"index" json:"subscriber_id,string"`
	Username     string    `gorm:"index" json:"username"`
	Action       string    `json:"action"`    // isolir | unisolir
	Mechanism    string    `json:"mechanism"` // radius_group | firewall_list | pppoe_profile | none
	Trigger      string    `json:"trigger"`   // scheduled | overdue | manual
	Result       string    `json:"result"`    // success | skipped | failed
	Message      string    `json:"message"`
	ExecutedAt   time.Time `gorm:"index" json:"executed_at"`
}

// TableName Specify table name
func (IsolirLog) TableName() string {
	return "isolir_log"
}
