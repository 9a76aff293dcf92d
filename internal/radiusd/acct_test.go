package radiusd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"
)

type fakeAcctRepo struct {
	created []*domain.RadiusAccounting
	updates []string
	stops   []string

	lastSessionTime int
	lastInputTotal  int64
	lastOutputTotal int64

	updateFound bool
}

func (f *fakeAcctRepo) CreateSession(ctx context.Context, sess *domain.RadiusAccounting) error {
	// same unique id is a no-op, mirroring the on-conflict insert
	for _, existing := range f.created {
		if existing.AcctUniqueId == sess.AcctUniqueId {
			return nil
		}
	}
	f.created = append(f.created, sess)
	return nil
}

func (f *fakeAcctRepo) UpdateSession(ctx context.Context, uniqueId string, sessionTime int, inputTotal, outputTotal int64, inputPackets, outputPackets int) (bool, error) {
	f.updates = append(f.updates, uniqueId)
	f.lastSessionTime = sessionTime
	f.lastInputTotal = inputTotal
	f.lastOutputTotal = outputTotal
	return f.updateFound, nil
}

func (f *fakeAcctRepo) StopSession(ctx context.Context, uniqueId string, stopTime time.Time, sessionTime int, inputTotal, outputTotal int64, terminateCause string) (bool, error) {
	f.stops = append(f.stops, uniqueId)
	return true, nil
}

func newAcctService(repo AcctRepository, nasAddr string) *RadiusService {
	s := &RadiusService{acctRepo: repo}
	s.clients.Store(&nasSnapshot{byAddr: map[string]*domain.NetNas{
		nasAddr: {Ipaddr: nasAddr, Identifier: "nas1", Secret: "secret", Status: "enabled"},
	}})
	return s
}

func newAcctRequest(t *testing.T, statusType rfc2866.AcctStatusType, username, sessionId, from string) *radius.Request {
	t.Helper()
	p := radius.New(radius.CodeAccountingRequest, []byte("secret"))
	if err := rfc2866.AcctStatusType_Set(p, statusType); err != nil {
		t.Fatal(err)
	}
	if err := rfc2865.UserName_SetString(p, username); err != nil {
		t.Fatal(err)
	}
	if err := rfc2866.AcctSessionID_SetString(p, sessionId); err != nil {
		t.Fatal(err)
	}
	return &radius.Request{
		Packet:     p,
		RemoteAddr: &net.UDPAddr{IP: net.ParseIP(from), Port: 45678},
	}
}

func TestAcctSessionLifecycle(t *testing.T) {
	repo := &fakeAcctRepo{updateFound: true}
	s := newAcctService(repo, "10.1.0.1")
	wantUnique := AcctUniqueId("10.1.0.1", "sess-1", "budi")

	// Start
	w := &fakeWriter{}
	s.handleAcct(w, newAcctRequest(t, rfc2866.AcctStatusType_Value_Start, "budi", "sess-1", "10.1.0.1"))
	if w.resp == nil || w.resp.Code != radius.CodeAccountingResponse {
		t.Fatal("start must be answered with Accounting-Response")
	}
	if len(repo.created) != 1 || repo.created[0].AcctUniqueId != wantUnique {
		t.Fatalf("created = %+v, want one session keyed %s", repo.created, wantUnique)
	}

	// Retransmitted start lands on the same row
	s.handleAcct(&fakeWriter{}, newAcctRequest(t, rfc2866.AcctStatusType_Value_Start, "budi", "sess-1", "10.1.0.1"))
	if len(repo.created) != 1 {
		t.Fatalf("retransmitted start created %d rows, want 1", len(repo.created))
	}

	// Interim update
	w = &fakeWriter{}
	s.handleAcct(w, newAcctRequest(t, rfc2866.AcctStatusType_Value_InterimUpdate, "budi", "sess-1", "10.1.0.1"))
	if w.resp == nil || w.resp.Code != radius.CodeAccountingResponse {
		t.Fatal("interim must be answered with Accounting-Response")
	}
	if len(repo.updates) != 1 || repo.updates[0] != wantUnique {
		t.Fatalf("updates = %v, want [%s]", repo.updates, wantUnique)
	}

	// Stop
	w = &fakeWriter{}
	s.handleAcct(w, newAcctRequest(t, rfc2866.AcctStatusType_Value_Stop, "budi", "sess-1", "10.1.0.1"))
	if w.resp == nil || w.resp.Code != radius.CodeAccountingResponse {
		t.Fatal("stop must be answered with Accounting-Response")
	}
	if len(repo.stops) != 1 || repo.stops[0] != wantUnique {
		t.Fatalf("stops = %v, want [%s]", repo.stops, wantUnique)
	}
}

func TestAcctGigawordsFolding(t *testing.T) {
	repo := &fakeAcctRepo{updateFound: true}
	s := newAcctService(repo, "10.1.0.1")

	r := newAcctRequest(t, rfc2866.AcctStatusType_Value_InterimUpdate, "budi", "sess-2", "10.1.0.1")
	if err := rfc2866.AcctInputOctets_Set(r.Packet, 1000); err != nil {
		t.Fatal(err)
	}
	if err := rfc2869.AcctInputGigawords_Set(r.Packet, 2); err != nil {
		t.Fatal(err)
	}
	if err := rfc2866.AcctOutputOctets_Set(r.Packet, 500); err != nil {
		t.Fatal(err)
	}

	s.handleAcct(&fakeWriter{}, r)

	wantInput := int64(1000) + 2*4*1024*1024*1024
	if repo.lastInputTotal != wantInput {
		t.Errorf("input total = %d, want %d", repo.lastInputTotal, wantInput)
	}
	if repo.lastOutputTotal != 500 {
		t.Errorf("output total = %d, want 500", repo.lastOutputTotal)
	}
}

func TestAcctMissingStatusTypeStillAnswered(t *testing.T) {
	repo := &fakeAcctRepo{}
	s := newAcctService(repo, "10.1.0.1")

	p := radius.New(radius.CodeAccountingRequest, []byte("secret"))
	_ = rfc2865.UserName_SetString(p, "budi")
	w := &fakeWriter{}
	s.handleAcct(w, &radius.Request{
		Packet:     p,
		RemoteAddr: &net.UDPAddr{IP: net.ParseIP("10.1.0.1"), Port: 45678},
	})

	if w.resp == nil || w.resp.Code != radius.CodeAccountingResponse {
		t.Fatal("malformed accounting must still be answered")
	}
	if len(repo.created)+len(repo.updates)+len(repo.stops) != 0 {
		t.Fatal("malformed accounting must not touch the store")
	}
}

func TestAcctUniqueIdStable(t *testing.T) {
	a := AcctUniqueId("10.1.0.1", "sess-1", "budi")
	b := AcctUniqueId("10.1.0.1", "sess-1", "budi")
	if a != b {
		t.Fatalf("same triple produced different ids: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("unique id length = %d, want 32 hex chars", len(a))
	}
	if AcctUniqueId("10.1.0.2", "sess-1", "budi") == a {
		t.Error("different NAS must produce a different id")
	}
	if AcctUniqueId("10.1.0.1", "sess-2", "budi") == a {
		t.Error("different session must produce a different id")
	}
}
