package domain

import "time"

// NetNasMetric is one health sample for a NAS device. Latency comes from the
// ping probe, the CPU and uptime gauges from the SNMP status probe; a sample
// carries whichever probe produced it.
type NetNasMetric struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NasId      int64     `gorm:"index" json:"nas_id"`
	Ts         time.Time `gorm:"index" json:"ts"`
	Latency    int64     `json:"latency"`     // milliseconds, -1 when unreachable
	CpuPercent int64     `json:"cpu_percent"` // -1 when the device does not expose it
	SysUptime  int64     `json:"sys_uptime"`  // seconds
	CreatedAt  time.Time `json:"created_at"`
}

// TableName Specify table name
func (NetNasMetric) TableName() string {
	return "net_nas_metric"
}
