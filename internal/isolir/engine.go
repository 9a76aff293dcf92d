package isolir

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/internal/netaction"
	"github.com/feedad/kilusi-bill-sub000/pkg/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Trigger values recorded in the audit log
const (
	TriggerScheduled = "scheduled"
	TriggerOverdue   = "overdue"
	TriggerManual    = "manual"
)

// EventIsolirNotify is published on the bus after every successful transition.
// Payload is a NotifyEvent.
const EventIsolirNotify = "isolir:notify"

// NotifyEvent carries the facts a notifier needs; the engine does not know
// how messages get delivered
type NotifyEvent struct {
	Username string
	Mobile   string
	Action   string // isolir | unisolir
	Trigger  string
}

// ErrAlreadyInState the subscriber is already in the requested state; callers
// treat this as a no-op, not a failure
var ErrAlreadyInState = errors.New("subscriber already in requested state")

// Settings is the runtime policy surface, read fresh each sweep so operators
// can retune without a restart
type Settings interface {
	IsolirGraceDays() int
	IsolirProfile() string
	IsolirPackageId() int64
	DefaultProfile() string
}

// NetworkActions is the enforcement surface, implemented by netaction.Dispatcher
type NetworkActions interface {
	ApplyBlock(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas) (netaction.Result, error)
	RemoveBlock(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas) (netaction.Result, error)
	SetProfile(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas, profileName, rateLimit string) (netaction.Result, error)
}

// Outcome reports what a transition actually did
type Outcome struct {
	Action    string // isolir | unisolir
	NoOp      bool   // already in the requested state
	Skipped   bool   // no usable mechanism, nothing touched
	Mechanism string
	Warnings  []string
}

// SweepReport aggregates one pass over all candidates
type SweepReport struct {
	Suspended int
	NoOps     int
	Skipped   int
	Errors    int
	Elapsed   time.Duration
}

// Engine drives subscriber suspension and restoration. Transitions for the
// same username are serialized; a sweep never touches one subscriber twice.
type Engine struct {
	store    SubscriberStore
	billing  BillingProvider
	actions  NetworkActions
	settings Settings
	bus      EventBus.Bus

	flight  singleflight.Group
	workers int
}

func NewEngine(store SubscriberStore, billing BillingProvider, actions NetworkActions, settings Settings, bus EventBus.Bus) *Engine {
	return &Engine{
		store:    store,
		billing:  billing,
		actions:  actions,
		settings: settings,
		bus:      bus,
		workers:  8,
	}
}

// Isolate suspends the subscriber. Concurrent calls for the same username
// collapse into one attempt.
func (e *Engine) Isolate(ctx context.Context, username, trigger string) (Outcome, error) {
	v, err, _ := e.flight.Do("isolir:"+username, func() (interface{}, error) {
		return e.isolate(ctx, username, trigger)
	})
	if err != nil {
		return Outcome{Action: domain.IsolirActionIsolir}, err
	}
	return v.(Outcome), nil
}

// Restore lifts the suspension. Restoring a subscriber who is not isolated
// is a safe no-op.
func (e *Engine) Restore(ctx context.Context, username, trigger string) (Outcome, error) {
	v, err, _ := e.flight.Do("unisolir:"+username, func() (interface{}, error) {
		return e.restore(ctx, username, trigger)
	})
	if err != nil {
		return Outcome{Action: domain.IsolirActionUnisolir}, err
	}
	return v.(Outcome), nil
}

func (e *Engine) isolate(ctx context.Context, username, trigger string) (Outcome, error) {
	out := Outcome{Action: domain.IsolirActionIsolir}
	sub, err := e.store.GetByUsername(ctx, username)
	if err != nil {
		return out, err
	}
	if sub.Isolated() {
		out.NoOp = true
		zap.S().Debugf("isolir %s: already isolated, skip", username)
		return out, nil
	}

	result, aerr := e.enforce(ctx, sub)
	out.Mechanism = result.Mechanism
	out.Warnings = result.Warnings
	if aerr != nil {
		e.audit(ctx, sub, domain.IsolirActionIsolir, result.Mechanism, trigger, domain.IsolirResultFailed, aerr.Error())
		metrics.IncrCounter(metrics.MetricsIsolirSweepErrors, 1)
		return out, aerr
	}
	if !result.Applied {
		// no usable mechanism for this subscriber; record and move on
		out.Skipped = true
		e.audit(ctx, sub, domain.IsolirActionIsolir, netaction.MechanismNone, trigger, domain.IsolirResultSkipped, "no enforcement mechanism available")
		zap.S().Warnf("isolir %s: no enforcement mechanism, skipped", username)
		return out, nil
	}

	if err := e.store.UpdateStatus(ctx, sub.ID, domain.SubscriberStatusIsolated); err != nil {
		return out, err
	}
	if sub.CustomerId != 0 {
		if err := e.billing.UpdateCustomerIsolirStatus(ctx, sub.CustomerId, domain.SubscriberStatusIsolated); err != nil {
			out.Warnings = append(out.Warnings, "billing status sync: "+err.Error())
			zap.S().Warnf("isolir %s: billing status sync failed: %s", username, err)
		}
	}
	e.audit(ctx, sub, domain.IsolirActionIsolir, result.Mechanism, trigger, domain.IsolirResultSuccess, strings.Join(out.Warnings, "; "))
	metrics.IncrCounter(metrics.MetricsIsolirSuspended, 1)
	e.publish(sub, domain.IsolirActionIsolir, trigger)
	zap.S().Infof("isolir %s: suspended via %s (%s)", username, result.Mechanism, trigger)
	return out, nil
}

// enforce picks the suspension mechanism from the connection type
func (e *Engine) enforce(ctx context.Context, sub *domain.Subscriber) (netaction.Result, error) {
	switch sub.ConnectionType {
	case domain.ConnectionTypeStatic:
		nas, err := e.store.GetNas(ctx, sub.NasId)
		if err != nil {
			return netaction.Result{Mechanism: netaction.MechanismNone}, err
		}
		return e.actions.ApplyBlock(ctx, sub, nas)

	case domain.ConnectionTypePppoe:
		profile := e.settings.IsolirProfile()
		rateLimit := ""
		if pkgId := e.settings.IsolirPackageId(); pkgId != 0 {
			pkg, err := e.store.GetPackage(ctx, pkgId)
			if err != nil {
				return netaction.Result{Mechanism: netaction.MechanismNone}, err
			}
			// A retried pass after a partial failure already has the isolir
			// package assigned; swapping again would overwrite the remembered
			// previous package with the isolir package itself.
			if sub.PackageId != pkgId {
				if err := e.store.SwapPackage(ctx, sub.ID, pkgId, sub.PackageId); err != nil {
					return netaction.Result{Mechanism: netaction.MechanismNone}, err
				}
				if sub.CustomerId != 0 {
					if err := e.billing.SwitchCustomerPackage(ctx, sub.CustomerId, pkgId); err != nil {
						zap.S().Warnf("isolir %s: billing package switch failed: %s", sub.Username, err)
					}
				}
			}
			if pkg.PppoeProfile != "" {
				profile = pkg.PppoeProfile
			}
			rateLimit = pkg.RateLimit
		}
		var nas *domain.NetNas
		if sub.NasId != 0 {
			nas, _ = e.store.GetNas(ctx, sub.NasId)
		}
		return e.actions.SetProfile(ctx, sub, nas, profile, rateLimit)

	default:
		return netaction.Result{Mechanism: netaction.MechanismNone}, nil
	}
}

func (e *Engine) restore(ctx context.Context, username, trigger string) (Outcome, error) {
	out := Outcome{Action: domain.IsolirActionUnisolir}
	sub, err := e.store.GetByUsername(ctx, username)
	if err != nil {
		return out, err
	}
	if !sub.Isolated() {
		out.NoOp = true
		zap.S().Debugf("unisolir %s: not isolated, skip", username)
		return out, nil
	}

	var result netaction.Result
	var aerr error
	switch sub.ConnectionType {
	case domain.ConnectionTypeStatic:
		var nas *domain.NetNas
		nas, aerr = e.store.GetNas(ctx, sub.NasId)
		if aerr == nil {
			result, aerr = e.actions.RemoveBlock(ctx, sub, nas)
		}
	case domain.ConnectionTypePppoe:
		result, aerr = e.restoreProfile(ctx, sub)
	default:
		result = netaction.Result{Mechanism: netaction.MechanismNone}
	}
	out.Mechanism = result.Mechanism
	out.Warnings = result.Warnings
	if aerr != nil {
		e.audit(ctx, sub, domain.IsolirActionUnisolir, result.Mechanism, trigger, domain.IsolirResultFailed, aerr.Error())
		return out, aerr
	}

	if err := e.store.UpdateStatus(ctx, sub.ID, domain.SubscriberStatusNormal); err != nil {
		return out, err
	}
	if sub.CustomerId != 0 {
		if err := e.billing.UpdateCustomerIsolirStatus(ctx, sub.CustomerId, domain.SubscriberStatusNormal); err != nil {
			out.Warnings = append(out.Warnings, "billing status sync: "+err.Error())
			zap.S().Warnf("unisolir %s: billing status sync failed: %s", username, err)
		}
	}
	e.audit(ctx, sub, domain.IsolirActionUnisolir, result.Mechanism, trigger, domain.IsolirResultSuccess, strings.Join(out.Warnings, "; "))
	metrics.IncrCounter(metrics.MetricsIsolirRestored, 1)
	e.publish(sub, domain.IsolirActionUnisolir, trigger)
	zap.S().Infof("unisolir %s: restored via %s (%s)", username, result.Mechanism, trigger)
	return out, nil
}

// restoreProfile puts a PPPoE subscriber back on their paid profile. The
// remembered pre-isolation package wins; its name and finally the configured
// default profile serve as fallbacks when the profile field is blank.
func (e *Engine) restoreProfile(ctx context.Context, sub *domain.Subscriber) (netaction.Result, error) {
	pkgId := sub.PreviousPackageId
	if pkgId == 0 {
		pkgId = sub.PackageId
	}
	var profile, rateLimit string
	if pkgId != 0 {
		pkg, err := e.store.GetPackage(ctx, pkgId)
		if err != nil {
			return netaction.Result{Mechanism: netaction.MechanismNone}, err
		}
		profile = pkg.PppoeProfile
		if profile == "" && pkg.Name != "" {
			profile = strings.ToLower(strings.ReplaceAll(pkg.Name, " ", "-"))
		}
		rateLimit = pkg.RateLimit
	}
	if profile == "" {
		profile = e.settings.DefaultProfile()
	}

	if sub.PreviousPackageId != 0 {
		if err := e.store.SwapPackage(ctx, sub.ID, sub.PreviousPackageId, 0); err != nil {
			return netaction.Result{Mechanism: netaction.MechanismNone}, err
		}
		if sub.CustomerId != 0 {
			if err := e.billing.RestorePreviousPackage(ctx, sub.CustomerId); err != nil {
				zap.S().Warnf("unisolir %s: billing package restore failed: %s", sub.Username, err)
			}
		}
	}

	var nas *domain.NetNas
	if sub.NasId != 0 {
		nas, _ = e.store.GetNas(ctx, sub.NasId)
	}
	return e.actions.SetProfile(ctx, sub, nas, profile, rateLimit)
}

// Sweep runs one isolation pass: subscribers whose scheduled date arrived
// plus customers the billing system reports past their grace period. Each
// candidate gets exactly one attempt per pass.
func (e *Engine) Sweep(ctx context.Context) SweepReport {
	start := time.Now()
	var report SweepReport

	seen := make(map[string]string) // username -> trigger

	now := time.Now()
	scheduled, err := e.store.ListScheduledCandidates(ctx, now)
	if err != nil {
		zap.S().Errorf("isolir sweep: scheduled candidates: %s", err)
		report.Errors++
	} else {
		for _, sub := range scheduled {
			seen[sub.Username] = TriggerScheduled
		}
	}

	overdue, err := e.billing.GetOverdueCustomers(ctx)
	if err != nil {
		zap.S().Errorf("isolir sweep: overdue feed: %s", err)
		report.Errors++
	} else {
		grace := e.settings.IsolirGraceDays()
		for _, c := range overdue {
			if c.DaysPastDue <= grace {
				continue
			}
			if c.Username == "" {
				continue
			}
			if _, ok := seen[c.Username]; !ok {
				seen[c.Username] = TriggerOverdue
			}
		}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.workers)
	)
	for username, trigger := range seen {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(username, trigger string) {
			defer wg.Done()
			defer func() { <-sem }()
			out, ierr := e.Isolate(ctx, username, trigger)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ierr != nil:
				report.Errors++
			case out.NoOp:
				report.NoOps++
			case out.Skipped:
				report.Skipped++
			default:
				report.Suspended++
			}
		}(username, trigger)
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	zap.S().Infof("isolir sweep: %d suspended, %d skipped, %d noop, %d errors in %s",
		report.Suspended, report.Skipped, report.NoOps, report.Errors, report.Elapsed)
	return report
}

func (e *Engine) audit(ctx context.Context, sub *domain.Subscriber, action, mechanism, trigger, result, message string) {
	entry := &domain.IsolirLog{
		SubscriberId: sub.ID,
		Username:     sub.Username,
		Action:       action,
		Mechanism:    mechanism,
		Trigger:      trigger,
		Result:       result,
		Message:      message,
		ExecutedAt:   time.Now(),
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		zap.S().Errorf("isolir audit log: %s", err)
	}
}

func (e *Engine) publish(sub *domain.Subscriber, action, trigger string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(EventIsolirNotify, NotifyEvent{
		Username: sub.Username,
		Mobile:   sub.Mobile,
		Action:   action,
		Trigger:  trigger,
	})
}
