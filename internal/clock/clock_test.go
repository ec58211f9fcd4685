package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/oro-os/oro-link-x86/internal/testutil/testlog"
)

func TestFakeAfterAdvancesAndRecords(t *testing.T) {
	testlog.Start(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	if err := Sleep(context.Background(), c, 3*time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	<-c.After(0)
	<-c.After(500 * time.Millisecond)

	if diff := cmp.Diff([]time.Duration{3 * time.Second, 500 * time.Millisecond}, c.Waits()); diff != "" {
		t.Fatalf("waits mismatch (-want +got):\n%s", diff)
	}
	if got := c.Elapsed(); got != 3500*time.Millisecond {
		t.Fatalf("elapsed got=%v want=3.5s", got)
	}
	if !c.Now().Equal(start.Add(3500 * time.Millisecond)) {
		t.Fatalf("unexpected now %v", c.Now())
	}
}

func TestSleepHonorsCancelledContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, Real(), time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(ctx, Real(), 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("zero sleep on cancelled ctx: got %v", err)
	}
}

func TestFakeTickerFiresOnlyOnTick(t *testing.T) {
	testlog.Start(t)
	c := Fake(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)

	select {
	case <-tk.C:
		t.Fatalf("ticker fired without Tick")
	default:
	}
	c.Tick()
	c.Tick()
	<-tk.C
	select {
	case <-tk.C:
		t.Fatalf("unread tick should have been dropped")
	default:
	}

	tk.Stop()
	c.Tick()
	select {
	case <-tk.C:
		t.Fatalf("stopped ticker fired")
	default:
	}
}

func TestRealTicker(t *testing.T) {
	testlog.Start(t)
	tk := Real().NewTicker(5 * time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C:
	case <-time.After(2 * time.Second):
		t.Fatalf("real ticker never fired")
	}
}
