package promo

import (
	"context"
	"testing"
	"time"

	"promokit/core"
	"promokit/realtime"
)

func TestNewDefaults(t *testing.T) {
	svc := New()
	defer svc.Close()

	if svc.Rounding() != 2 {
		t.Fatalf("default rounding = %d, want 2", svc.Rounding())
	}
	if svc.Tax() == nil {
		t.Fatal("expected a default tax engine")
	}
}

func TestWithRealtimeBridgesEvents(t *testing.T) {
	hub := realtime.NewHub()
	svc := New(WithRealtime(hub))
	defer svc.Close()

	_, ch := hub.Subscribe(8)
	svc.Bus().Publish(context.Background(), core.NewRewardApplied("o1", "p1", "r1", "c1", 10, 50))

	select {
	case ev := <-ch:
		if ev.Type != core.EventRewardApplied {
			t.Fatalf("event type = %s", ev.Type)
		}
		if ev.OrderID != "o1" || ev.Amount != 10 {
			t.Fatalf("event payload wrong: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event never reached the hub")
	}
}

func TestWithRounding(t *testing.T) {
	svc := New(WithRounding(3))
	defer svc.Close()
	if svc.Rounding() != 3 {
		t.Fatalf("rounding = %d, want 3", svc.Rounding())
	}
}
