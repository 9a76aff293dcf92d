package app

import (
	"errors"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/pkg/cache"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Settings categories and names stored in sys_config as type/name pairs
const (
	SettingsIsolir    = "isolir"
	SettingsRadius    = "radius"
	SettingsScheduler = "scheduler"

	SettingsIsolirGraceDays      = "grace_days"
	SettingsIsolirProfile        = "profile"
	SettingsIsolirPackageId      = "package_id"
	SettingsIsolirDefaultProfile = "default_profile"
	SettingsRadiusAuthMode       = "auth_mode"
	SettingsRadiusMonitorMode    = "monitor_mode"
	SettingsRadiusAcctHistDays   = "accounting_history_days"
	SettingsSchedulerMaxWorkers  = "max_workers"
)

const settingsCacheTTL = 30 * time.Second

// SettingsManager reads operator-tunable settings from sys_config with a
// short read-through cache so sweep-time lookups never hammer the database
type SettingsManager struct {
	db    *gorm.DB
	cache *cache.TTLCache
}

func NewSettingsManager(db *gorm.DB) *SettingsManager {
	return &SettingsManager{db: db, cache: cache.NewTTLCache()}
}

// GetString returns the setting value for category/name, empty when missing
func (m *SettingsManager) GetString(category, name string) string {
	key := category + "." + name
	if v, ok := m.cache.GetIfFresh(key, settingsCacheTTL); ok {
		return v.(string)
	}
	var cfg domain.SysConfig
	err := m.db.Where("type = ? and name = ?", category, name).First(&cfg).Error
	if err != nil {
		if !errorsIsNotFound(err) {
			zap.S().Errorf("settings read %s: %s", key, err)
		}
		m.cache.Put(key, "")
		return ""
	}
	m.cache.Put(key, cfg.Value)
	return cfg.Value
}

func (m *SettingsManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *SettingsManager) GetBool(category, name string) bool {
	return cast.ToBool(m.GetString(category, name))
}

// Set writes a setting and invalidates its cache entry
func (m *SettingsManager) Set(category, name, value string) error {
	var cfg domain.SysConfig
	err := m.db.Where("type = ? and name = ?", category, name).First(&cfg).Error
	if err != nil {
		if !errorsIsNotFound(err) {
			return err
		}
		err = m.db.Create(&domain.SysConfig{Type: category, Name: name, Value: value}).Error
	} else {
		err = m.db.Model(&domain.SysConfig{}).Where("id = ?", cfg.ID).Update("value", value).Error
	}
	if err != nil {
		return err
	}
	m.cache.Delete(category + "." + name)
	return nil
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isolirSettings adapts SettingsManager to the isolir engine's policy surface
type isolirSettings struct {
	m *SettingsManager
}

func (s isolirSettings) IsolirGraceDays() int {
	return int(s.m.GetInt64(SettingsIsolir, SettingsIsolirGraceDays))
}

func (s isolirSettings) IsolirProfile() string {
	return s.m.GetString(SettingsIsolir, SettingsIsolirProfile)
}

func (s isolirSettings) IsolirPackageId() int64 {
	return s.m.GetInt64(SettingsIsolir, SettingsIsolirPackageId)
}

func (s isolirSettings) DefaultProfile() string {
	if v := s.m.GetString(SettingsIsolir, SettingsIsolirDefaultProfile); v != "" {
		return v
	}
	return "default"
}
