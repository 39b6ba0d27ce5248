package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/synapchat/pkg/providers/mock"
	"github.com/harunnryd/synapchat/pkg/voice"
)

func TestRunStopsWhenServiceReturns(t *testing.T) {
	var order []string
	r := NewLifecycleRunner(Options{
		Banner: BannerOptions{Disabled: true},
		Hooks: Hooks{
			OnStart: func() { order = append(order, "start") },
			OnStop:  func() { order = append(order, "stop") },
		},
		Services: []Service{ServiceFunc(func(context.Context) error {
			order = append(order, "service")
			return nil
		})},
		Drainers: []Drainer{DrainFunc(func() error {
			order = append(order, "drain")
			return nil
		})},
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(order, ","); got != "start,service,drain,stop" {
		t.Fatalf("unexpected order %s", got)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRunReturnsServiceAndDrainErrors(t *testing.T) {
	boom := errors.New("listen failed")
	drainErr := errors.New("drain failed")
	r := NewLifecycleRunner(Options{
		Banner:   BannerOptions{Disabled: true},
		Services: []Service{ServiceFunc(func(context.Context) error { return boom })},
		Drainers: []Drainer{DrainFunc(func() error { return drainErr })},
	})
	err := r.Run(context.Background())
	if !errors.Is(err, boom) || !errors.Is(err, drainErr) {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(Options{
		Banner:   BannerOptions{Disabled: true},
		Timeout:  20 * time.Millisecond,
		Drainers: []Drainer{DrainFunc(func() error { <-block; return nil })},
	})
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestCancelTearsDownSession(t *testing.T) {
	var session *mock.Session
	ctrl := voice.New(voice.Config{}, func(events voice.Events) voice.SessionClient {
		session = mock.NewSession(events, mock.SessionConfig{AutoConnect: true, AutoDisconnect: true})
		return session
	})
	ctrl.SetMicPermission(true)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewLifecycleRunner(Options{
		Banner:   BannerOptions{Disabled: true},
		Drainers: []Drainer{ctrl},
	})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
	if session.Open() {
		t.Fatalf("expected session closed on shutdown")
	}
	if ctrl.Snapshot().State != voice.StateIdle {
		t.Fatalf("expected idle after drain")
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(BannerOptions{Out: &buf, Title: "SYNAPCHAT"})
	if !strings.Contains(buf.String(), "Version: "+Version) {
		t.Fatalf("expected version line, got %q", buf.String())
	}
	buf.Reset()
	PrintBanner(BannerOptions{Out: &buf, Disabled: true})
	if buf.Len() != 0 {
		t.Fatalf("disabled banner should print nothing")
	}
}
