package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/internal/isolir"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	texts []string
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]string(nil), f.texts...)
}

func TestNormalizeMsisdn(t *testing.T) {
	tests := []struct{ in, want string }{
		{"081234567890", "6281234567890"},
		{"0812-3456-7890", "6281234567890"},
		{"+62 812 3456 7890", "6281234567890"},
		{"6281234567890", "6281234567890"},
	}
	for _, tc := range tests {
		if got := NormalizeMsisdn(tc.in); got != tc.want {
			t.Errorf("NormalizeMsisdn(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHandleIsolirEventSendsNormalized(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	n.HandleIsolirEvent(isolir.NotifyEvent{
		Username: "budi",
		Mobile:   "081234567890",
		Action:   domain.IsolirActionIsolir,
		Trigger:  isolir.TriggerScheduled,
	})

	sent, texts := sender.snapshot()
	if len(sent) != 1 || sent[0] != "6281234567890" {
		t.Fatalf("sent = %v", sent)
	}
	if !strings.Contains(texts[0], "budi") || !strings.Contains(texts[0], "dinonaktifkan") {
		t.Errorf("suspension text = %q", texts[0])
	}
}

func TestHandleIsolirEventNoMobileSkips(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	n.HandleIsolirEvent(isolir.NotifyEvent{Username: "budi", Action: domain.IsolirActionIsolir})

	if sent, _ := sender.snapshot(); len(sent) != 0 {
		t.Fatalf("sent = %v, want nothing", sent)
	}
}

func TestRenderMessagePerAction(t *testing.T) {
	suspend := renderMessage(isolir.NotifyEvent{Username: "budi", Action: domain.IsolirActionIsolir})
	restore := renderMessage(isolir.NotifyEvent{Username: "budi", Action: domain.IsolirActionUnisolir})
	if suspend == restore {
		t.Fatal("suspend and restore must read differently")
	}
	if !strings.Contains(restore, "aktif kembali") {
		t.Errorf("restore text = %q", restore)
	}
}

func TestSubscribeDeliversBusEvents(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)
	bus := EventBus.New()
	if err := n.Subscribe(bus); err != nil {
		t.Fatal(err)
	}

	bus.Publish(isolir.EventIsolirNotify, isolir.NotifyEvent{
		Username: "budi",
		Mobile:   "081234567890",
		Action:   domain.IsolirActionUnisolir,
	})
	bus.WaitAsync()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sent, _ := sender.snapshot(); len(sent) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bus event never reached the sender")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
