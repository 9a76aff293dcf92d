package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// WhatsAppSender delivers messages through a paired WhatsApp device. The
// whatsmeow session store shares the application database so pairing
// survives restarts.
type WhatsAppSender struct {
	container *sqlstore.Container
	mu        sync.RWMutex
	client    *whatsmeow.Client
}

// NewWhatsAppSender wraps the application's existing database connection for
// the whatsmeow session store and loads the first paired device, if any.
// Pairing itself (QR scan) is an operator action done out of band.
func NewWhatsAppSender(ctx context.Context, sqlDB *sql.DB, driver string) (*WhatsAppSender, error) {
	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("whatsmeow store upgrade: %w", err)
	}

	s := &WhatsAppSender{container: container}
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsmeow list devices: %w", err)
	}
	if len(devices) > 0 {
		s.client = whatsmeow.NewClient(devices[0], nil)
	} else {
		zap.S().Warn("whatsapp: no paired device in store, notifications disabled until pairing")
	}
	return s, nil
}

// Start connects the client and disconnects when ctx ends
func (s *WhatsAppSender) Start(ctx context.Context) error {
	s.mu.RLock()
	cli := s.client
	s.mu.RUnlock()
	if cli == nil {
		<-ctx.Done()
		return nil
	}
	if err := cli.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}
	<-ctx.Done()
	cli.Disconnect()
	return nil
}

func (s *WhatsAppSender) SendText(ctx context.Context, to string, text string) error {
	s.mu.RLock()
	cli := s.client
	s.mu.RUnlock()
	if cli == nil {
		return fmt.Errorf("no whatsapp device paired")
	}

	jid, err := waTypes.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return fmt.Errorf("parse jid %s: %w", to, err)
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := cli.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}
