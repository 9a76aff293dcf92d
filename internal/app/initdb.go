package app

import (
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"go.uber.org/zap"
)

type settingSchema struct {
	Category    string
	Name        string
	Default     string
	Description string
}

// Default settings created on first start. Values live in sys_config so
// operators can retune them at runtime.
var defaultSettings = []settingSchema{
	{SettingsIsolir, SettingsIsolirGraceDays, "3", "Days past due before overdue customers are suspended"},
	{SettingsIsolir, SettingsIsolirProfile, "isolir", "PPP profile applied to suspended PPPoE subscribers"},
	{SettingsIsolir, SettingsIsolirPackageId, "0", "Package to switch suspended subscribers to (0 = profile only)"},
	{SettingsIsolir, SettingsIsolirDefaultProfile, "default", "PPP profile used on restore when the package carries none"},
	{SettingsRadius, SettingsRadiusAuthMode, "radius", "Subscriber auth mode: radius or device"},
	{SettingsRadius, SettingsRadiusMonitorMode, "snmp", "Device monitoring mode: snmp or api"},
	{SettingsRadius, SettingsRadiusAcctHistDays, "90", "Days of accounting history kept before cleanup"},
	{SettingsScheduler, SettingsSchedulerMaxWorkers, "25", "Max concurrent device probes per scheduler pass"},
}

func (a *Application) checkSettings() {
	for sortid, schema := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", schema.Category, schema.Name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				Sort:   sortid,
				Type:   schema.Category,
				Name:   schema.Name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Category+"."+schema.Name),
				zap.String("default", schema.Default))
		}
	}
}

// checkSchedulers initializes default scheduled tasks
func (a *Application) checkSchedulers() {
	defaultSchedulers := []domain.NetScheduler{
		{
			Name:     "NAS Latency Check",
			TaskType: domain.TaskLatencyCheck,
			Interval: 300, // 5 minutes
			Status:   "enabled",
			Remark:   "Periodically checks latency to all NAS devices",
		},
		{
			Name:     "SNMP Status Probe",
			TaskType: domain.TaskSnmpStatus,
			Interval: 600, // 10 minutes
			Status:   "enabled",
			Remark:   "Periodically probes NAS devices via SNMP for model and health",
		},
		{
			Name:     "Isolir Sweep",
			TaskType: domain.TaskIsolirSweep,
			Interval: 3600, // 1 hour
			Status:   "enabled",
			Remark:   "Suspends subscribers past their scheduled date or grace period",
		},
	}

	for _, sched := range defaultSchedulers {
		var count int64
		a.gormDB.Model(&domain.NetScheduler{}).
			Where("task_type = ?", sched.TaskType).
			Count(&count)

		if count == 0 {
			sched.NextRunAt = time.Now().Add(time.Duration(sched.Interval) * time.Second)
			if err := a.gormDB.Create(&sched).Error; err != nil {
				zap.L().Error("failed to create default scheduler",
					zap.String("name", sched.Name),
					zap.Error(err))
			} else {
				zap.L().Info("initialized default scheduler",
					zap.String("name", sched.Name),
					zap.String("task_type", sched.TaskType))
			}
		}
	}
}
