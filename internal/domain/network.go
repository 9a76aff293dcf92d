package domain

import "time"

// Network module related models

// NetNas NAS device data model, typically gateway-type devices (BRAS/router).
// Every inbound RADIUS packet and every SNMP poll resolves against this table;
// a source address with no row here is dropped without a response.
type NetNas struct {
	ID              int64     `json:"id,string" form:"id"`                          // Primary key ID
	Name            string    `json:"name" form:"name"`                             // Device name
	Identifier      string    `json:"identifier" form:"identifier"`                 // Device identifier - RADIUS
	Hostname        string    `json:"hostname" form:"hostname"`                     // Device host address
	Ipaddr          string    `gorm:"index" json:"ipaddr" form:"ipaddr"`            // Device IP
	Secret          string    `json:"secret" form:"secret"`                         // Device RADIUS Secret
	CoaPort         int       `json:"coa_port" form:"coa_port"`                     // Device RADIUS COA Port
	Username        string    `json:"username" form:"username"`                     // Device API login username
	Password        string    `json:"password" form:"password"`                     // Device API login password
	ApiPort         int       `json:"api_port" form:"api_port"`                     // Device API Port (RouterOS)
	ApiState        string    `json:"api_state" form:"api_state"`                   // Device API State (enabled/disabled)
	SnmpPort        int       `json:"snmp_port" form:"snmp_port"`                   // Device SNMP Port
	SnmpCommunity   string    `json:"snmp_community" form:"snmp_community"`         // Device SNMP Community string
	SnmpVersion     string    `json:"snmp_version" form:"snmp_version"`             // SNMP version (1/2c)
	SnmpState       string    `json:"snmp_state" form:"snmp_state"`                 // Device SNMP State (enabled/disabled)
	Model           string    `json:"model" form:"model"`                           // Device model from sysDescr
	SnmpLastProbeAt time.Time `json:"snmp_last_probe_at" form:"snmp_last_probe_at"` // Last SNMP probe time
	SnmpLastResult  string    `json:"snmp_last_result" form:"snmp_last_result"`     // Last SNMP probe result (ok/failed)
	SnmpLastMessage string    `json:"snmp_last_message" form:"snmp_last_message"`   // Last SNMP probe message or error
	Status          string    `json:"status" form:"status"`                         // Device status (enabled/disabled)
	Latency         int       `json:"latency" form:"latency"`                       // Device latency in milliseconds
	Tags            string    `json:"tags" form:"tags"`                             // Tags
	Remark          string    `json:"remark" form:"remark"`                         // Remark
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (NetNas) TableName() string {
	return "net_nas"
}

// Scheduler task types
const (
	TaskLatencyCheck = "latency_check"
	TaskSnmpStatus   = "snmp_status"
	TaskIsolirSweep  = "isolir_sweep"
)

// NetScheduler scheduler task data model for managing scheduled jobs
type NetScheduler struct {
	ID          int64     `json:"id,string" form:"id"`              // Primary key ID
	Name        string    `json:"name" form:"name"`                 // Scheduler name
	TaskType    string    `json:"task_type" form:"task_type"`       // Task type (latency_check, snmp_status, isolir_sweep)
	Interval    int       `json:"interval" form:"interval"`         // Interval in seconds
	Status      string    `json:"status" form:"status"`             // Status (enabled/disabled)
	LastRunAt   time.Time `json:"last_run_at"`                      // Last execution time
	NextRunAt   time.Time `json:"next_run_at"`                      // Next scheduled execution time
	LastResult  string    `json:"last_result" form:"last_result"`   // Last execution result (success/failed)
	LastMessage string    `json:"last_message" form:"last_message"` // Last execution message or error
	Remark      string    `json:"remark" form:"remark"`             // Remark
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (NetScheduler) TableName() string {
	return "net_scheduler"
}
