package domain

import "time"

// Radius module related models, following the FreeRADIUS rad* table layout

// RadCheck credential check entry; one active Cleartext-Password row per username
type RadCheck struct {
	ID        int64     `json:"id,string" form:"id"`
	Username  string    `gorm:"uniqueIndex" json:"username" form:"username"`
	Attribute string    `json:"attribute" form:"attribute"` // Cleartext-Password
	Op        string    `json:"op" form:"op"`               // :=
	Value     string    `json:"value" form:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (RadCheck) TableName() string {
	return "radcheck"
}

// RadReply user-level reply attribute returned on Access-Accept
type RadReply struct {
	ID        int64     `json:"id,string" form:"id"`
	Username  string    `gorm:"index" json:"username" form:"username"`
	Attribute string    `json:"attribute" form:"attribute"`
	Op        string    `json:"op" form:"op"`
	Value     string    `json:"value" form:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (RadReply) TableName() string {
	return "radreply"
}

// RadGroupReply group-level reply attribute shared by all group members
type RadGroupReply struct {
	ID        int64     `json:"id,string" form:"id"`
	Groupname string    `gorm:"index" json:"groupname" form:"groupname"`
	Attribute string    `json:"attribute" form:"attribute"`
	Op        string    `json:"op" form:"op"`
	Value     string    `json:"value" form:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (RadGroupReply) TableName() string {
	return "radgroupreply"
}

// RadUserGroup group membership; at steady state a user holds exactly one row,
// enforced by delete-then-insert on every reassignment
type RadUserGroup struct {
	ID        int64     `json:"id,string" form:"id"`
	Username  string    `gorm:"index" json:"username" form:"username"`
	Groupname string    `gorm:"index" json:"groupname" form:"groupname"`
	Priority  int       `json:"priority" form:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (RadUserGroup) TableName() string {
	return "radusergroup"
}

// RadiusAccounting subscriber session ledger derived from Accounting-Request
// traffic. A session is open while AcctStopTime is null; AcctUniqueId is the
// serialization key for concurrent updates.
type RadiusAccounting struct {
	ID                 int64      `json:"id,string" form:"id"`
	AcctSessionId      string     `gorm:"index" json:"acct_session_id" form:"acct_session_id"`
	AcctUniqueId       string     `gorm:"uniqueIndex" json:"acct_unique_id" form:"acct_unique_id"`
	Username           string     `gorm:"index" json:"username" form:"username"`
	NasId              string     `json:"nas_id" form:"nas_id"`
	NasAddr            string     `gorm:"index" json:"nas_addr" form:"nas_addr"`
	NasPortId          string     `json:"nas_port_id" form:"nas_port_id"`
	FramedIpaddr       string     `json:"framed_ipaddr" form:"framed_ipaddr"`
	MacAddr            string     `json:"mac_addr" form:"mac_addr"`
	AcctSessionTime    int        `json:"acct_session_time" form:"acct_session_time"`
	AcctInputTotal     int64      `json:"acct_input_total" form:"acct_input_total"`
	AcctOutputTotal    int64      `json:"acct_output_total" form:"acct_output_total"`
	AcctInputPackets   int        `json:"acct_input_packets" form:"acct_input_packets"`
	AcctOutputPackets  int        `json:"acct_output_packets" form:"acct_output_packets"`
	AcctStartTime      time.Time  `gorm:"index" json:"acct_start_time" form:"acct_start_time"`
	AcctStopTime       *time.Time `gorm:"index" json:"acct_stop_time" form:"acct_stop_time"`
	AcctTerminateCause string     `json:"acct_terminate_cause" form:"acct_terminate_cause"`
	LastUpdate         time.Time  `json:"last_update"`
}

// TableName Specify table name
func (RadiusAccounting) TableName() string {
	return "radius_accounting"
}

// Open reports whether the session has not yet received a Stop record
func (a *RadiusAccounting) Open() bool {
	return a.AcctStopTime == nil
}
