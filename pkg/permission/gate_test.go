package permission_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harunnryd/synapchat/pkg/errorsx"
	"github.com/harunnryd/synapchat/pkg/notify"
	"github.com/harunnryd/synapchat/pkg/permission"
	"github.com/harunnryd/synapchat/pkg/providers/mock"
	"github.com/harunnryd/synapchat/pkg/voice"
)

type countingRequester struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRequester) RequestAccess(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

type captureNotifier struct {
	seen []notify.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n notify.Notification) error {
	c.seen = append(c.seen, n)
	return nil
}

func newController() *voice.Controller {
	return voice.New(voice.Config{AgentID: "agent"}, mock.Factory(mock.SessionConfig{AutoConnect: true}))
}

func TestGateGrant(t *testing.T) {
	ctrl := newController()
	req := &countingRequester{}
	gate := permission.NewGate(req, ctrl, nil, nil)

	res, err := gate.Request(context.Background())
	if err != nil || res != permission.Granted {
		t.Fatalf("expected granted, got %s %v", res, err)
	}
	if !ctrl.Snapshot().MicPermission {
		t.Fatalf("controller should record the grant")
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start after grant: %v", err)
	}
}

func TestGateDenied(t *testing.T) {
	ctrl := newController()
	notes := &captureNotifier{}
	req := &countingRequester{err: errors.New("NotAllowedError")}
	gate := permission.NewGate(req, ctrl, notes, nil)

	res, err := gate.Request(context.Background())
	if res != permission.Denied {
		t.Fatalf("expected denied, got %s", res)
	}
	if !errorsx.HasReason(err, errorsx.ReasonMicDenied) {
		t.Fatalf("expected mic_denied reason, got %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.MicPermission || snap.LastError != "Microphone access denied" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(notes.seen) != 1 || notes.seen[0].Message != permission.DeniedMessage || notes.seen[0].Level != notify.LevelWarning {
		t.Fatalf("unexpected notifications %+v", notes.seen)
	}
	if err := ctrl.Start(context.Background()); !errors.Is(err, voice.ErrPermissionRequired) {
		t.Fatalf("start must stay gated, got %v", err)
	}
}

func TestGateRequestsOnce(t *testing.T) {
	req := &countingRequester{}
	gate := permission.NewGate(req, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gate.Request(context.Background())
		}()
	}
	wg.Wait()
	if req.calls != 1 {
		t.Fatalf("expected one platform request, got %d", req.calls)
	}
}

func TestGatePendingBeforeRequest(t *testing.T) {
	gate := permission.NewGate(permission.Static{Grant: true}, nil, nil, nil)
	if res, _ := gate.Result(); res != permission.Pending {
		t.Fatalf("expected pending, got %s", res)
	}
}

func TestStaticRequester(t *testing.T) {
	if err := (permission.Static{Grant: true}).RequestAccess(context.Background()); err != nil {
		t.Fatalf("expected grant, got %v", err)
	}
	if err := (permission.Static{}).RequestAccess(context.Background()); err == nil {
		t.Fatalf("expected denial")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (permission.Static{Grant: true}).RequestAccess(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
