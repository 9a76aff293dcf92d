package radiusd

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/feedad/kilusi-bill-sub000/config"
	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"layeh.com/radius"
)

// nasSnapshot is the immutable NAS allow-list published to packet handlers.
// Reloads build a fresh map and swap it atomically; in-flight requests keep
// reading the snapshot they started with.
type nasSnapshot struct {
	byAddr map[string]*domain.NetNas
}

func (s *nasSnapshot) lookup(ip string) *domain.NetNas {
	return s.byAddr[ip]
}

// RadiusService runs the authentication and accounting UDP servers against a
// shared NAS allow-list and session store.
type RadiusService struct {
	cfg      *config.AppConfig
	nasRepo  NasRepository
	authRepo AuthRepository
	acctRepo AcctRepository

	clients atomic.Value // *nasSnapshot
	stats   Stats
	workers *ants.Pool

	authServer *radius.PacketServer
	acctServer *radius.PacketServer
}

const defaultWorkerPoolSize = 128

func NewRadiusService(cfg *config.AppConfig, nasRepo NasRepository, authRepo AuthRepository, acctRepo AcctRepository) (*RadiusService, error) {
	pool, err := ants.NewPool(defaultWorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create radius worker pool: %w", err)
	}

	s := &RadiusService{
		cfg:      cfg,
		nasRepo:  nasRepo,
		authRepo: authRepo,
		acctRepo: acctRepo,
		workers:  pool,
	}
	s.clients.Store(&nasSnapshot{byAddr: map[string]*domain.NetNas{}})

	s.authServer = &radius.PacketServer{
		Addr:         fmt.Sprintf("%s:%d", cfg.Radiusd.Host, cfg.Radiusd.AuthPort),
		SecretSource: s,
		Handler:      radius.HandlerFunc(s.serveAuth),
	}
	s.acctServer = &radius.PacketServer{
		Addr:         fmt.Sprintf("%s:%d", cfg.Radiusd.Host, cfg.Radiusd.AcctPort),
		SecretSource: s,
		Handler:      radius.HandlerFunc(s.serveAcct),
	}
	return s, nil
}

// ReloadClients republishes the NAS allow-list snapshot from the store.
// Safe to call while the servers run.
func (s *RadiusService) ReloadClients(ctx context.Context) error {
	list, err := s.nasRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load nas clients: %w", err)
	}
	byAddr := make(map[string]*domain.NetNas, len(list))
	for i := range list {
		n := list[i]
		byAddr[n.Ipaddr] = &n
	}
	s.clients.Store(&nasSnapshot{byAddr: byAddr})
	zap.L().Info("radius nas allow-list reloaded",
		zap.String("namespace", "radius"),
		zap.Int("count", len(byAddr)),
	)
	return nil
}

// LookupNas resolves a source IP against the current snapshot
func (s *RadiusService) LookupNas(ip string) *domain.NetNas {
	return s.clients.Load().(*nasSnapshot).lookup(ip)
}

// RADIUSSecret implements radius.SecretSource. Returning an error for an
// unknown source makes the library drop the datagram without any response,
// which is the anti-probing behavior we want.
func (s *RadiusService) RADIUSSecret(ctx context.Context, remoteAddr net.Addr) ([]byte, error) {
	ip := remoteIP(remoteAddr)
	if ip == "" {
		s.stats.incrUnauthorized()
		return nil, ErrUnknownNas
	}
	nas := s.LookupNas(ip)
	if nas == nil {
		s.stats.incrUnauthorized()
		zap.L().Warn("radius packet from unknown nas",
			zap.String("namespace", "radius"),
			zap.String("src_ip", ip),
		)
		return nil, ErrUnknownNas
	}
	return []byte(nas.Secret), nil
}

// Start loads the allow-list and runs both servers until ctx is canceled
func (s *RadiusService) Start(ctx context.Context) error {
	if err := s.ReloadClients(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		zap.L().Info("radius auth server listening",
			zap.String("namespace", "radius"),
			zap.String("addr", s.authServer.Addr),
		)
		errCh <- s.authServer.ListenAndServe()
	}()
	go func() {
		zap.L().Info("radius acct server listening",
			zap.String("namespace", "radius"),
			zap.String("addr", s.acctServer.Addr),
		)
		errCh <- s.acctServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown stops both servers gracefully and releases the worker pool
func (s *RadiusService) Shutdown(ctx context.Context) error {
	err1 := s.authServer.Shutdown(ctx)
	err2 := s.acctServer.Shutdown(ctx)
	s.workers.Release()
	if err1 != nil {
		return err1
	}
	return err2
}

// Stats returns a snapshot of the request counters
func (s *RadiusService) Stats() Stats {
	return s.stats.Snapshot()
}

// submit runs fn on the bounded worker pool and waits for completion, keeping
// per-datagram isolation while capping concurrent in-flight handlers.
func (s *RadiusService) submit(fn func()) {
	done := make(chan struct{})
	err := s.workers.Submit(func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.stats.incrErrors()
				zap.L().Error("radius handler panic",
					zap.String("namespace", "radius"),
					zap.Any("panic", r),
				)
			}
		}()
		fn()
	})
	if err != nil {
		s.stats.incrErrors()
		zap.L().Error("radius worker pool rejected request",
			zap.String("namespace", "radius"),
			zap.Error(err),
		)
		return
	}
	<-done
}

func (s *RadiusService) serveAuth(w radius.ResponseWriter, r *radius.Request) {
	s.submit(func() { s.handleAuth(w, r) })
}

func (s *RadiusService) serveAcct(w radius.ResponseWriter, r *radius.Request) {
	s.submit(func() { s.handleAcct(w, r) })
}

// remoteIP extracts the bare IP from a UDP address
func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}
