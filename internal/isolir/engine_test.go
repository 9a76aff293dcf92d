package isolir

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/internal/netaction"
	"github.com/pkg/errors"
)

type fakeStore struct {
	mu        sync.Mutex
	subs      map[string]*domain.Subscriber
	packages  map[int64]*domain.Package
	scheduled []domain.Subscriber

	swaps [][3]int64 // subscriberId, packageId, previousId
	logs  []*domain.IsolirLog
}

func newFakeStore(subs ...*domain.Subscriber) *fakeStore {
	s := &fakeStore{
		subs:     make(map[string]*domain.Subscriber),
		packages: make(map[int64]*domain.Package),
	}
	for _, sub := range subs {
		s.subs[sub.Username] = sub
	}
	return s
}

func (s *fakeStore) ListScheduledCandidates(ctx context.Context, now time.Time) ([]domain.Subscriber, error) {
	return s.scheduled, nil
}

func (s *fakeStore) GetByUsername(ctx context.Context, username string) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[username]
	if !ok {
		return nil, errors.Errorf("subscriber %s not found", username)
	}
	copied := *sub
	return &copied, nil
}

func (s *fakeStore) GetByCustomerId(ctx context.Context, customerId int64) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.CustomerId == customerId {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, errors.Errorf("subscriber for customer %d not found", customerId)
}

func (s *fakeStore) GetNas(ctx context.Context, nasId int64) (*domain.NetNas, error) {
	return &domain.NetNas{ID: nasId, Ipaddr: "10.0.0.1"}, nil
}

func (s *fakeStore) GetPackage(ctx context.Context, packageId int64) (*domain.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[packageId]
	if !ok {
		return nil, errors.Errorf("package %d not found", packageId)
	}
	return pkg, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, subscriberId int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ID == subscriberId {
			sub.Status = status
		}
	}
	return nil
}

func (s *fakeStore) SwapPackage(ctx context.Context, subscriberId, packageId, previousId int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, [3]int64{subscriberId, packageId, previousId})
	for _, sub := range s.subs {
		if sub.ID == subscriberId {
			sub.PackageId = packageId
			sub.PreviousPackageId = previousId
		}
	}
	return nil
}

func (s *fakeStore) AppendLog(ctx context.Context, entry *domain.IsolirLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *fakeStore) lastLog() *domain.IsolirLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) == 0 {
		return nil
	}
	return s.logs[len(s.logs)-1]
}

type actionCall struct {
	op       string
	username string
	profile  string
}

type fakeActions struct {
	mu    sync.Mutex
	calls []actionCall

	profileFailures int // SetProfile fails this many times before succeeding
}

func (a *fakeActions) record(op, username, profile string) {
	a.mu.Lock()
	a.calls = append(a.calls, actionCall{op: op, username: username, profile: profile})
	a.mu.Unlock()
}

func (a *fakeActions) ApplyBlock(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas) (netaction.Result, error) {
	a.record("apply_block", sub.Username, "")
	return netaction.Result{Applied: true, Mechanism: netaction.MechanismFirewallList}, nil
}

func (a *fakeActions) RemoveBlock(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas) (netaction.Result, error) {
	a.record("remove_block", sub.Username, "")
	return netaction.Result{Applied: true, Mechanism: netaction.MechanismFirewallList}, nil
}

func (a *fakeActions) SetProfile(ctx context.Context, sub *domain.Subscriber, nas *domain.NetNas, profileName, rateLimit string) (netaction.Result, error) {
	a.mu.Lock()
	if a.profileFailures > 0 {
		a.profileFailures--
		a.mu.Unlock()
		return netaction.Result{Mechanism: netaction.MechanismPppoeProfile}, errors.New("device unreachable")
	}
	a.mu.Unlock()
	a.record("set_profile", sub.Username, profileName)
	return netaction.Result{Applied: true, Mechanism: netaction.MechanismPppoeProfile}, nil
}

type fakeBilling struct {
	mu             sync.Mutex
	overdue        []OverdueCustomer
	statusUpdates  []string
	packageSwitch  []int64
	packageRestore []int64
}

func (b *fakeBilling) GetOverdueCustomers(ctx context.Context) ([]OverdueCustomer, error) {
	return b.overdue, nil
}

func (b *fakeBilling) UpdateCustomerIsolirStatus(ctx context.Context, customerId int64, status string) error {
	b.mu.Lock()
	b.statusUpdates = append(b.statusUpdates, status)
	b.mu.Unlock()
	return nil
}

func (b *fakeBilling) SwitchCustomerPackage(ctx context.Context, customerId, packageId int64) error {
	b.mu.Lock()
	b.packageSwitch = append(b.packageSwitch, packageId)
	b.mu.Unlock()
	return nil
}

func (b *fakeBilling) RestorePreviousPackage(ctx context.Context, customerId int64) error {
	b.mu.Lock()
	b.packageRestore = append(b.packageRestore, customerId)
	b.mu.Unlock()
	return nil
}

type fakeSettings struct {
	graceDays      int
	profile        string
	packageId      int64
	defaultProfile string
}

func (s fakeSettings) IsolirGraceDays() int   { return s.graceDays }
func (s fakeSettings) IsolirProfile() string  { return s.profile }
func (s fakeSettings) IsolirPackageId() int64 { return s.packageId }
func (s fakeSettings) DefaultProfile() string { return s.defaultProfile }

func TestIsolateAlreadyIsolatedIsNoOp(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusIsolated,
		ConnectionType: domain.ConnectionTypePppoe,
	})
	actions := &fakeActions{}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{profile: "isolir"}, nil)

	out, err := engine.Isolate(context.Background(), "budi", TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if !out.NoOp {
		t.Fatal("expected a no-op")
	}
	if len(actions.calls) != 0 {
		t.Fatalf("no-op must not touch the network, got %v", actions.calls)
	}
	if len(store.logs) != 0 {
		t.Fatal("no-op must not be audited")
	}
}

func TestIsolatePppoeSwapsPackage(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, CustomerId: 77, Username: "budi", Status: domain.SubscriberStatusNormal,
		ConnectionType: domain.ConnectionTypePppoe, PackageId: 5, NasId: 3,
	})
	store.packages[99] = &domain.Package{ID: 99, Name: "Isolir", PppoeProfile: "isolir-prof", RateLimit: "64k/64k"}
	actions := &fakeActions{}
	billing := &fakeBilling{}
	engine := NewEngine(store, billing, actions, fakeSettings{profile: "isolir", packageId: 99}, nil)

	out, err := engine.Isolate(context.Background(), "budi", TriggerScheduled)
	if err != nil {
		t.Fatal(err)
	}
	if out.NoOp || out.Skipped {
		t.Fatalf("expected an applied transition, got %+v", out)
	}
	if out.Mechanism != netaction.MechanismPppoeProfile {
		t.Errorf("mechanism = %s", out.Mechanism)
	}

	if len(store.swaps) != 1 || store.swaps[0] != [3]int64{1, 99, 5} {
		t.Fatalf("swaps = %v, want [[1 99 5]]", store.swaps)
	}
	if store.subs["budi"].Status != domain.SubscriberStatusIsolated {
		t.Error("subscriber status not updated")
	}
	if len(actions.calls) != 1 || actions.calls[0].profile != "isolir-prof" {
		t.Fatalf("actions = %v, want one set_profile with the package profile", actions.calls)
	}
	if len(billing.packageSwitch) != 1 || billing.packageSwitch[0] != 99 {
		t.Errorf("billing package switch = %v", billing.packageSwitch)
	}
	if len(billing.statusUpdates) != 1 || billing.statusUpdates[0] != domain.SubscriberStatusIsolated {
		t.Errorf("billing status updates = %v", billing.statusUpdates)
	}

	log := store.lastLog()
	if log == nil || log.Result != domain.IsolirResultSuccess || log.Trigger != TriggerScheduled {
		t.Fatalf("audit log = %+v", log)
	}
}

func TestIsolateRetryKeepsPreviousPackage(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusNormal,
		ConnectionType: domain.ConnectionTypePppoe, PackageId: 5, NasId: 3,
	})
	store.packages[5] = &domain.Package{ID: 5, Name: "Home 10M", PppoeProfile: "home-10m"}
	store.packages[99] = &domain.Package{ID: 99, Name: "Isolir", PppoeProfile: "isolir-prof"}
	actions := &fakeActions{profileFailures: 1}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{profile: "isolir", packageId: 99}, nil)

	// first pass: package swap commits, then the profile push fails
	if _, err := engine.Isolate(context.Background(), "budi", TriggerOverdue); err == nil {
		t.Fatal("first pass must surface the profile failure")
	}
	if store.subs["budi"].PackageId != 99 || store.subs["budi"].PreviousPackageId != 5 {
		t.Fatalf("after failed pass: package=%d previous=%d, want 99/5",
			store.subs["budi"].PackageId, store.subs["budi"].PreviousPackageId)
	}

	// retry pass: already on the isolir package, must not swap again
	out, err := engine.Isolate(context.Background(), "budi", TriggerOverdue)
	if err != nil {
		t.Fatal(err)
	}
	if out.NoOp || out.Skipped {
		t.Fatalf("retry = %+v, want an applied transition", out)
	}
	if len(store.swaps) != 1 {
		t.Fatalf("swaps = %v, retry must not swap again", store.swaps)
	}
	if store.subs["budi"].PreviousPackageId != 5 {
		t.Fatalf("previous package = %d, want 5 (original package lost)",
			store.subs["budi"].PreviousPackageId)
	}

	// restore puts the subscriber back on the original package profile
	if _, err := engine.Restore(context.Background(), "budi", TriggerManual); err != nil {
		t.Fatal(err)
	}
	if store.subs["budi"].PackageId != 5 {
		t.Errorf("restored package = %d, want 5", store.subs["budi"].PackageId)
	}
	last := actions.calls[len(actions.calls)-1]
	if last.op != "set_profile" || last.profile != "home-10m" {
		t.Errorf("restore action = %+v, want the original package profile", last)
	}
}

func TestIsolateStaticUsesFirewallBlock(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 2, Username: "warung", Status: domain.SubscriberStatusNormal,
		ConnectionType: domain.ConnectionTypeStatic, StaticIp: "103.10.0.5", NasId: 3,
	})
	actions := &fakeActions{}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{}, nil)

	out, err := engine.Isolate(context.Background(), "warung", TriggerOverdue)
	if err != nil {
		t.Fatal(err)
	}
	if out.Mechanism != netaction.MechanismFirewallList {
		t.Errorf("mechanism = %s", out.Mechanism)
	}
	if len(actions.calls) != 1 || actions.calls[0].op != "apply_block" {
		t.Fatalf("actions = %v", actions.calls)
	}
	if len(store.swaps) != 0 {
		t.Error("static isolation must not touch packages")
	}
}

func TestRestoreStaticRemovesFirewallBlock(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 2, Username: "warung", Status: domain.SubscriberStatusIsolated,
		ConnectionType: domain.ConnectionTypeStatic, StaticIp: "103.10.0.5", NasId: 3,
	})
	actions := &fakeActions{}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{}, nil)

	out, err := engine.Restore(context.Background(), "warung", TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if out.NoOp || out.Skipped {
		t.Fatalf("expected an applied transition, got %+v", out)
	}
	if out.Mechanism != netaction.MechanismFirewallList {
		t.Errorf("mechanism = %s", out.Mechanism)
	}
	if len(actions.calls) != 1 || actions.calls[0].op != "remove_block" {
		t.Fatalf("actions = %v, want a single remove_block", actions.calls)
	}
	if len(store.swaps) != 0 {
		t.Error("static restore must not touch packages")
	}
	if store.subs["warung"].Status != domain.SubscriberStatusNormal {
		t.Error("subscriber status not restored")
	}
	log := store.lastLog()
	if log == nil || log.Result != domain.IsolirResultSuccess || log.Action != domain.IsolirActionUnisolir {
		t.Fatalf("audit log = %+v", log)
	}
}

func TestIsolateUnknownConnectionTypeSkipped(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 3, Username: "misterius", Status: domain.SubscriberStatusNormal,
		ConnectionType: "dialup",
	})
	engine := NewEngine(store, &fakeBilling{}, &fakeActions{}, fakeSettings{}, nil)

	out, err := engine.Isolate(context.Background(), "misterius", TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Skipped {
		t.Fatalf("expected skipped, got %+v", out)
	}
	if store.subs["misterius"].Status == domain.SubscriberStatusIsolated {
		t.Fatal("skipped subscriber must not be marked isolated")
	}
	log := store.lastLog()
	if log == nil || log.Result != domain.IsolirResultSkipped {
		t.Fatalf("audit log = %+v", log)
	}
}

func TestRestoreNotIsolatedIsNoOp(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusNormal,
		ConnectionType: domain.ConnectionTypePppoe,
	})
	actions := &fakeActions{}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{}, nil)

	out, err := engine.Restore(context.Background(), "budi", TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if !out.NoOp {
		t.Fatal("expected a no-op")
	}
	if len(actions.calls) != 0 {
		t.Fatalf("no-op must not touch the network, got %v", actions.calls)
	}
}

func TestRestorePppoeReturnsToPreviousPackage(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, CustomerId: 77, Username: "budi", Status: domain.SubscriberStatusIsolated,
		ConnectionType: domain.ConnectionTypePppoe, PackageId: 99, PreviousPackageId: 5, NasId: 3,
	})
	store.packages[5] = &domain.Package{ID: 5, Name: "Home 10M", PppoeProfile: "home-10m"}
	actions := &fakeActions{}
	billing := &fakeBilling{}
	engine := NewEngine(store, billing, actions, fakeSettings{defaultProfile: "default"}, nil)

	out, err := engine.Restore(context.Background(), "budi", TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if out.NoOp || out.Skipped {
		t.Fatalf("expected an applied transition, got %+v", out)
	}
	if len(store.swaps) != 1 || store.swaps[0] != [3]int64{1, 5, 0} {
		t.Fatalf("swaps = %v, want [[1 5 0]]", store.swaps)
	}
	if len(actions.calls) != 1 || actions.calls[0].profile != "home-10m" {
		t.Fatalf("actions = %v, want set_profile home-10m", actions.calls)
	}
	if store.subs["budi"].Status != domain.SubscriberStatusNormal {
		t.Error("subscriber status not restored")
	}
	if len(billing.packageRestore) != 1 {
		t.Errorf("billing package restore = %v", billing.packageRestore)
	}
}

func TestRestoreProfileFallsBackToPackageName(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusIsolated,
		ConnectionType: domain.ConnectionTypePppoe, PackageId: 5,
	})
	// no pppoe_profile on the package; the lowercased hyphenated name serves
	store.packages[5] = &domain.Package{ID: 5, Name: "Home 20M"}
	actions := &fakeActions{}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{defaultProfile: "default"}, nil)

	if _, err := engine.Restore(context.Background(), "budi", TriggerManual); err != nil {
		t.Fatal(err)
	}
	if len(actions.calls) != 1 || actions.calls[0].profile != "home-20m" {
		t.Fatalf("actions = %v, want set_profile home-20m", actions.calls)
	}
}

func TestRestoreProfileFallsBackToDefault(t *testing.T) {
	store := newFakeStore(&domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusIsolated,
		ConnectionType: domain.ConnectionTypePppoe,
	})
	actions := &fakeActions{}
	engine := NewEngine(store, &fakeBilling{}, actions, fakeSettings{defaultProfile: "default"}, nil)

	if _, err := engine.Restore(context.Background(), "budi", TriggerManual); err != nil {
		t.Fatal(err)
	}
	if len(actions.calls) != 1 || actions.calls[0].profile != "default" {
		t.Fatalf("actions = %v, want set_profile default", actions.calls)
	}
}

func TestSweepDedupesAndFiltersGrace(t *testing.T) {
	isolirDate := time.Now().Add(-time.Hour)
	budi := &domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusNormal,
		ConnectionType: domain.ConnectionTypeStatic, NasId: 3,
		EnableIsolir: true, IsolirDate: &isolirDate,
	}
	siti := &domain.Subscriber{
		ID: 2, Username: "siti", Status: domain.SubscriberStatusNormal,
		ConnectionType: domain.ConnectionTypeStatic, NasId: 3,
	}
	store := newFakeStore(budi, siti)
	store.scheduled = []domain.Subscriber{*budi}

	billing := &fakeBilling{overdue: []OverdueCustomer{
		{CustomerId: 10, Username: "budi", DaysPastDue: 9}, // also scheduled; one attempt
		{CustomerId: 11, Username: "siti", DaysPastDue: 5},
		{CustomerId: 12, Username: "joko", DaysPastDue: 2}, // inside grace
		{CustomerId: 13, Username: "", DaysPastDue: 30},    // no RADIUS account
	}}
	actions := &fakeActions{}
	engine := NewEngine(store, billing, actions, fakeSettings{graceDays: 3}, nil)

	report := engine.Sweep(context.Background())

	if report.Suspended != 2 {
		t.Errorf("suspended = %d, want 2", report.Suspended)
	}
	if report.Errors != 0 {
		t.Errorf("errors = %d, want 0", report.Errors)
	}
	if len(actions.calls) != 2 {
		t.Fatalf("actions = %v, want exactly one attempt per subscriber", actions.calls)
	}

	triggers := make(map[string]string)
	for _, log := range store.logs {
		triggers[log.Username] = log.Trigger
	}
	if triggers["budi"] != TriggerScheduled {
		t.Errorf("budi trigger = %s, scheduled must win over overdue", triggers["budi"])
	}
	if triggers["siti"] != TriggerOverdue {
		t.Errorf("siti trigger = %s", triggers["siti"])
	}
}

func TestSweepCountsNoOps(t *testing.T) {
	budi := &domain.Subscriber{
		ID: 1, Username: "budi", Status: domain.SubscriberStatusIsolated,
		ConnectionType: domain.ConnectionTypeStatic, NasId: 3,
	}
	store := newFakeStore(budi)
	billing := &fakeBilling{overdue: []OverdueCustomer{
		{CustomerId: 10, Username: "budi", DaysPastDue: 10},
	}}
	engine := NewEngine(store, billing, &fakeActions{}, fakeSettings{graceDays: 3}, nil)

	report := engine.Sweep(context.Background())
	if report.NoOps != 1 || report.Suspended != 0 {
		t.Fatalf("report = %+v, want one no-op", report)
	}
}

func TestSweepCountsMissingSubscriberAsError(t *testing.T) {
	store := newFakeStore()
	billing := &fakeBilling{overdue: []OverdueCustomer{
		{CustomerId: 10, Username: "ghost", DaysPastDue: 10},
	}}
	engine := NewEngine(store, billing, &fakeActions{}, fakeSettings{graceDays: 3}, nil)

	report := engine.Sweep(context.Background())
	if report.Errors != 1 {
		t.Fatalf("report = %+v, want one error", report)
	}
}
