package radiusd

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
)

type fakeAuthRepo struct {
	check    *domain.RadCheck
	checkErr error
	replies  []domain.RadReply
}

func (f *fakeAuthRepo) GetCheck(ctx context.Context, username string) (*domain.RadCheck, error) {
	return f.check, f.checkErr
}

func (f *fakeAuthRepo) EffectiveReplyAttributes(ctx context.Context, username string) ([]domain.RadReply, error) {
	return f.replies, nil
}

type fakeWriter struct {
	resp *radius.Packet
}

func (w *fakeWriter) Write(p *radius.Packet) error {
	w.resp = p
	return nil
}

func newAuthService(repo AuthRepository, nasAddrs ...string) *RadiusService {
	s := &RadiusService{authRepo: repo}
	byAddr := make(map[string]*domain.NetNas)
	for _, addr := range nasAddrs {
		byAddr[addr] = &domain.NetNas{Ipaddr: addr, Secret: "secret", Status: "enabled"}
	}
	s.clients.Store(&nasSnapshot{byAddr: byAddr})
	return s
}

func newAuthRequest(t *testing.T, username, password, from string) *radius.Request {
	t.Helper()
	p := radius.New(radius.CodeAccessRequest, []byte("secret"))
	if username != "" {
		if err := rfc2865.UserName_SetString(p, username); err != nil {
			t.Fatal(err)
		}
	}
	if password != "" {
		if err := rfc2865.UserPassword_SetString(p, password); err != nil {
			t.Fatal(err)
		}
	}
	return &radius.Request{
		Packet:     p,
		RemoteAddr: &net.UDPAddr{IP: net.ParseIP(from), Port: 34567},
	}
}

func TestHandleAuthAccept(t *testing.T) {
	repo := &fakeAuthRepo{
		check: &domain.RadCheck{Username: "budi", Attribute: "Cleartext-Password", Value: "rahasia"},
		replies: []domain.RadReply{
			{Attribute: "Mikrotik-Rate-Limit", Value: "10M/10M"},
			{Attribute: "Session-Timeout", Value: "86400"},
		},
	}
	s := newAuthService(repo, "10.1.0.1")

	w := &fakeWriter{}
	s.handleAuth(w, newAuthRequest(t, "budi", "rahasia", "10.1.0.1"))

	if w.resp == nil {
		t.Fatal("no response written")
	}
	if w.resp.Code != radius.CodeAccessAccept {
		t.Fatalf("got code %v, want Access-Accept", w.resp.Code)
	}
	if got := rfc2865.SessionTimeout_Get(w.resp); got != 86400 {
		t.Errorf("Session-Timeout = %d, want 86400", got)
	}
	if vsa := w.resp.Get(rfc2865.VendorSpecific_Type); len(vsa) == 0 {
		t.Error("Mikrotik-Rate-Limit VSA missing from accept")
	}
	if s.stats.Snapshot().Accept != 1 {
		t.Errorf("accept counter = %d, want 1", s.stats.Snapshot().Accept)
	}
}

func TestHandleAuthRejectDoesNotDiscloseAccounts(t *testing.T) {
	// unknown user and wrong password must produce identical reject messages
	unknown := newAuthService(&fakeAuthRepo{check: nil}, "10.1.0.1")
	wUnknown := &fakeWriter{}
	unknown.handleAuth(wUnknown, newAuthRequest(t, "ghost", "whatever", "10.1.0.1"))

	wrongPw := newAuthService(&fakeAuthRepo{
		check: &domain.RadCheck{Username: "budi", Value: "rahasia"},
	}, "10.1.0.1")
	wWrong := &fakeWriter{}
	wrongPw.handleAuth(wWrong, newAuthRequest(t, "budi", "salah", "10.1.0.1"))

	for name, w := range map[string]*fakeWriter{"unknown user": wUnknown, "wrong password": wWrong} {
		if w.resp == nil {
			t.Fatalf("%s: no response written", name)
		}
		if w.resp.Code != radius.CodeAccessReject {
			t.Fatalf("%s: got code %v, want Access-Reject", name, w.resp.Code)
		}
	}
	msgUnknown := rfc2865.ReplyMessage_GetString(wUnknown.resp)
	msgWrong := rfc2865.ReplyMessage_GetString(wWrong.resp)
	if msgUnknown != msgWrong {
		t.Errorf("reject messages differ: %q vs %q", msgUnknown, msgWrong)
	}
}

func TestHandleAuthStoreErrorFailsClosed(t *testing.T) {
	repo := &fakeAuthRepo{checkErr: errors.New("connection refused")}
	s := newAuthService(repo, "10.1.0.1")

	w := &fakeWriter{}
	s.handleAuth(w, newAuthRequest(t, "budi", "rahasia", "10.1.0.1"))

	if w.resp == nil || w.resp.Code != radius.CodeAccessReject {
		t.Fatal("store failure must produce Access-Reject")
	}
	if s.stats.Snapshot().Errors != 1 {
		t.Errorf("error counter = %d, want 1", s.stats.Snapshot().Errors)
	}
}

func TestHandleAuthMissingCredentialsRejected(t *testing.T) {
	s := newAuthService(&fakeAuthRepo{}, "10.1.0.1")
	w := &fakeWriter{}
	s.handleAuth(w, newAuthRequest(t, "budi", "", "10.1.0.1"))
	if w.resp == nil || w.resp.Code != radius.CodeAccessReject {
		t.Fatal("missing password must produce Access-Reject")
	}
}

func TestHandleAuthUnknownNasDropped(t *testing.T) {
	s := newAuthService(&fakeAuthRepo{
		check: &domain.RadCheck{Username: "budi", Value: "rahasia"},
	}, "10.1.0.1")

	w := &fakeWriter{}
	s.handleAuth(w, newAuthRequest(t, "budi", "rahasia", "192.168.99.99"))

	if w.resp != nil {
		t.Fatal("packet from unknown NAS must be dropped without a response")
	}
}

func TestRADIUSSecretUnknownSource(t *testing.T) {
	s := newAuthService(&fakeAuthRepo{}, "10.1.0.1")

	secret, err := s.RADIUSSecret(context.Background(), &net.UDPAddr{IP: net.ParseIP("172.16.0.9"), Port: 1000})
	if !errors.Is(err, ErrUnknownNas) {
		t.Fatalf("err = %v, want ErrUnknownNas", err)
	}
	if secret != nil {
		t.Fatal("unknown source must not leak a secret")
	}
	if s.stats.Snapshot().Unauthorized != 1 {
		t.Errorf("unauthorized counter = %d, want 1", s.stats.Snapshot().Unauthorized)
	}

	secret, err = s.RADIUSSecret(context.Background(), &net.UDPAddr{IP: net.ParseIP("10.1.0.1"), Port: 1000})
	if err != nil || string(secret) != "secret" {
		t.Fatalf("known source: got (%q, %v), want shared secret", secret, err)
	}
}

func TestApplyReplyAttribute(t *testing.T) {
	p := radius.New(radius.CodeAccessAccept, []byte("secret"))

	if err := applyReplyAttribute(p, "Framed-IP-Address", "100.64.0.7"); err != nil {
		t.Errorf("Framed-IP-Address: %v", err)
	}
	if got := rfc2865.FramedIPAddress_Get(p); got == nil || got.String() != "100.64.0.7" {
		t.Errorf("Framed-IP-Address = %v, want 100.64.0.7", got)
	}

	if err := applyReplyAttribute(p, "Framed-IP-Address", "not-an-ip"); err == nil {
		t.Error("invalid IP must be reported")
	}
	if err := applyReplyAttribute(p, "X-Unknown-Thing", "x"); err == nil {
		t.Error("unknown attribute must be reported")
	}
}

func TestAddMikrotikRateLimitEncoding(t *testing.T) {
	p := radius.New(radius.CodeAccessAccept, []byte("secret"))
	if err := addMikrotikRateLimit(p, "5M/5M"); err != nil {
		t.Fatal(err)
	}

	b := []byte(p.Get(rfc2865.VendorSpecific_Type))
	if len(b) < 6 {
		t.Fatalf("vsa too short: %d bytes", len(b))
	}
	vendor := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if vendor != mikrotikVendorId {
		t.Errorf("vendor id = %d, want %d", vendor, mikrotikVendorId)
	}
	if b[4] != mikrotikRateLimitType {
		t.Errorf("vendor type = %d, want %d", b[4], mikrotikRateLimitType)
	}
	if got := string(b[6:]); got != "5M/5M" {
		t.Errorf("vsa value = %q, want %q", got, "5M/5M")
	}

	if err := addMikrotikRateLimit(p, ""); err == nil {
		t.Error("empty rate limit must be rejected")
	}
}
