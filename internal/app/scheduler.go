package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/internal/snmpd"
	pinglib "github.com/go-ping/ping"
	"go.uber.org/zap"
)

// StartSchedulerService runs enabled schedulers periodically
func (a *Application) StartSchedulerService(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.runSchedulers(ctx)
			}
		}
	}()
}

// runSchedulers executes enabled schedulers whose next run has arrived
func (a *Application) runSchedulers(ctx context.Context) {
	var schedulers []domain.NetScheduler
	a.gormDB.Where("status = ?", "enabled").Find(&schedulers)
	now := time.Now()
	for i := range schedulers {
		sched := &schedulers[i]
		if sched.NextRunAt.IsZero() || !now.Before(sched.NextRunAt) {
			a.runSchedulerTask(ctx, sched)
			a.gormDB.Model(&domain.NetScheduler{}).Where("id = ?", sched.ID).
				Update("next_run_at", now.Add(time.Duration(sched.Interval)*time.Second))
		}
	}
}

func (a *Application) runSchedulerTask(ctx context.Context, sched *domain.NetScheduler) {
	switch sched.TaskType {
	case domain.TaskLatencyCheck:
		a.runLatencyCheckScheduler(ctx, sched)
	case domain.TaskSnmpStatus:
		a.runSnmpStatusScheduler(ctx, sched)
	case domain.TaskIsolirSweep:
		a.runIsolirSweepScheduler(ctx, sched)
	default:
		zap.S().Warnf("scheduler %s: unknown task type %s", sched.Name, sched.TaskType)
	}
}

func (a *Application) maxProbeWorkers(fallback int) int {
	maxWorkers := int(a.GetSettingsInt64Value(SettingsScheduler, SettingsSchedulerMaxWorkers))
	if maxWorkers <= 0 {
		maxWorkers = fallback
	}
	return maxWorkers
}

func (a *Application) finishScheduler(sched *domain.NetScheduler, result, message string) {
	a.gormDB.Model(&domain.NetScheduler{}).Where("id = ?", sched.ID).Updates(map[string]interface{}{
		"last_run_at":  time.Now(),
		"last_result":  result,
		"last_message": message,
	})
}

// runLatencyCheckScheduler pings all enabled NAS and records latency
func (a *Application) runLatencyCheckScheduler(ctx context.Context, sched *domain.NetScheduler) {
	var nases []domain.NetNas
	a.gormDB.Where("status = ?", "enabled").Find(&nases)

	sem := make(chan struct{}, a.maxProbeWorkers(50))
	var wg sync.WaitGroup

	for _, nas := range nases {
		wg.Add(1)
		sem <- struct{}{}
		go func(n domain.NetNas) {
			defer wg.Done()
			defer func() { <-sem }()

			latency := pingNas(n)

			if err := a.gormDB.Model(&domain.NetNas{}).Where("id = ?", n.ID).
				Update("latency", latency).Error; err != nil {
				zap.L().Error("failed to update NAS latency", zap.String("ip", n.Ipaddr), zap.Error(err))
				return
			}
			a.gormDB.Create(&domain.NetNasMetric{
				NasId:      n.ID,
				Ts:         time.Now(),
				Latency:    int64(latency),
				CpuPercent: -1,
			})
			zap.L().Debug("NAS latency updated", zap.String("ip", n.Ipaddr), zap.Int("latency", latency))
		}(nas)
	}
	wg.Wait()
	a.finishScheduler(sched, "success", "NAS latency updated")
}

// pingNas returns latency in ms, -1 when the device is unreachable
func pingNas(nas domain.NetNas) int {
	ip := nas.Ipaddr
	pinger, err := pinglib.NewPinger(ip)
	if err != nil {
		zap.L().Warn("pingNas: NewPinger failed", zap.String("ip", ip), zap.Error(err))
		return -1
	}

	pinger.Count = 3
	pinger.Timeout = 3 * time.Second
	// Unprivileged mode so the program can run without root when supported
	pinger.SetPrivileged(false)

	err = pinger.Run() // blocks until finished
	if err != nil {
		zap.L().Debug("pingNas: icmp/udp run failed, trying TCP fallback", zap.String("ip", ip), zap.Error(err))
	} else {
		stats := pinger.Statistics()
		if stats.PacketsRecv > 0 {
			return int(stats.AvgRtt.Milliseconds())
		}
	}

	// TCP fallback: configured management ports first, then common ports
	ports := []int{}
	if nas.ApiPort > 0 && nas.ApiState == "enabled" {
		ports = append(ports, nas.ApiPort)
	}
	if nas.SnmpPort > 0 && nas.SnmpState == "enabled" {
		ports = append(ports, nas.SnmpPort)
	}
	ports = append(ports, 8728, 80, 443, 22)

	for _, p := range ports {
		addr := fmt.Sprintf("%s:%d", ip, p)
		start := time.Now()
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			conn.Close()
			return int(time.Since(start).Milliseconds())
		}
	}

	return -1
}

// runSnmpStatusScheduler probes NAS devices via SNMP for model and health
func (a *Application) runSnmpStatusScheduler(ctx context.Context, sched *domain.NetScheduler) {
	var nases []domain.NetNas
	a.gormDB.Where("status = ?", "enabled").Find(&nases)

	collector := snmpd.NewCollector()
	sem := make(chan struct{}, a.maxProbeWorkers(25))
	var wg sync.WaitGroup

	for _, nas := range nases {
		if nas.SnmpState != "enabled" || nas.SnmpCommunity == "" {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(n domain.NetNas) {
			defer wg.Done()
			defer func() { <-sem }()

			now := time.Now()
			info, err := collector.GetSystemInfo(ctx, snmpd.TargetFromNas(&n))
			if err != nil {
				if uerr := a.gormDB.Model(&domain.NetNas{}).Where("id = ?", n.ID).Updates(map[string]interface{}{
					"snmp_last_probe_at": now,
					"snmp_last_result":   "failed",
					"snmp_last_message":  err.Error(),
				}).Error; uerr != nil {
					zap.L().Error("failed to update NAS snmp probe result", zap.String("ip", n.Ipaddr), zap.Error(uerr))
				}
				return
			}

			model := firstLine(info.SysDescr)
			if len(model) > 200 {
				model = model[:200]
			}
			if err := a.gormDB.Model(&domain.NetNas{}).Where("id = ?", n.ID).Updates(map[string]interface{}{
				"model":              model,
				"snmp_last_probe_at": now,
				"snmp_last_result":   "ok",
				"snmp_last_message":  info.SysName,
			}).Error; err != nil {
				zap.L().Error("failed to update NAS snmp status", zap.String("ip", n.Ipaddr), zap.Error(err))
				return
			}
			a.gormDB.Create(&domain.NetNasMetric{
				NasId:      n.ID,
				Ts:         now,
				Latency:    -1,
				CpuPercent: int64(info.CpuLoad),
				SysUptime:  int64(info.UptimeSeconds),
			})
			zap.L().Debug("NAS snmp status updated", zap.String("ip", n.Ipaddr), zap.String("model", model))
		}(nas)
	}
	wg.Wait()
	a.finishScheduler(sched, "success", "SNMP status probe completed")
}

// runIsolirSweepScheduler runs one isolir pass through the injected engine
func (a *Application) runIsolirSweepScheduler(ctx context.Context, sched *domain.NetScheduler) {
	if a.sweeper == nil {
		a.finishScheduler(sched, "failed", "isolir engine not configured")
		return
	}
	summary := a.sweeper(ctx)
	a.finishScheduler(sched, "success", summary)
}

func firstLine(s string) string {
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
