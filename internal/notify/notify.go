// Package notify delivers subscriber-facing messages for suspension and
// restoration events. The isolir engine publishes events on the bus; this
// package owns the wording and the delivery channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/internal/isolir"
	"go.uber.org/zap"
)

// Sender delivers one text message to one recipient
type Sender interface {
	SendText(ctx context.Context, to string, text string) error
}

const sendTimeout = 15 * time.Second

// Notifier turns isolir events into outbound messages
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Subscribe attaches the notifier to the event bus. Handlers run async so a
// slow gateway never stalls the isolir engine.
func (n *Notifier) Subscribe(bus EventBus.Bus) error {
	return bus.SubscribeAsync(isolir.EventIsolirNotify, n.HandleIsolirEvent, false)
}

// HandleIsolirEvent is the bus callback for suspend/restore transitions
func (n *Notifier) HandleIsolirEvent(evt isolir.NotifyEvent) {
	if evt.Mobile == "" {
		zap.S().Debugf("notify %s: no mobile number, skip", evt.Username)
		return
	}
	text := renderMessage(evt)
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := n.sender.SendText(ctx, NormalizeMsisdn(evt.Mobile), text); err != nil {
		zap.S().Warnf("notify %s: send failed: %s", evt.Username, err)
		return
	}
	zap.S().Infof("notify %s: %s message sent", evt.Username, evt.Action)
}

func renderMessage(evt isolir.NotifyEvent) string {
	switch evt.Action {
	case domain.IsolirActionIsolir:
		return fmt.Sprintf("Layanan internet untuk akun %s telah dinonaktifkan sementara. "+
			"Silakan selesaikan pembayaran untuk mengaktifkan kembali.", evt.Username)
	case domain.IsolirActionUnisolir:
		return fmt.Sprintf("Layanan internet untuk akun %s telah aktif kembali. "+
			"Terima kasih atas pembayaran Anda.", evt.Username)
	default:
		return fmt.Sprintf("Status layanan akun %s telah diperbarui.", evt.Username)
	}
}

// NormalizeMsisdn rewrites local Indonesian numbers (08xx) to international
// form without the plus sign, which is what the gateway expects
func NormalizeMsisdn(mobile string) string {
	m := strings.TrimSpace(mobile)
	m = strings.NewReplacer(" ", "", "-", "", "+", "").Replace(m)
	if strings.HasPrefix(m, "0") {
		m = "62" + m[1:]
	}
	return m
}
