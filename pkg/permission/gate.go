// Package permission requests microphone access once and reports the result
// to the session controller.
package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/harunnryd/synapchat/pkg/errorsx"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/notify"
)

// Result is the outcome of a permission request.
type Result int

const (
	Pending Result = iota
	Granted
	Denied
)

func (r Result) String() string {
	switch r {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "pending"
	}
}

// DeniedMessage is the transient notification shown on denial.
const DeniedMessage = "Microphone Permission denied"

// Requester asks the platform for microphone access. A nil error grants it.
type Requester interface {
	RequestAccess(ctx context.Context) error
}

// Recorder receives the outcome. voice.Controller implements it.
type Recorder interface {
	SetMicPermission(granted bool)
}

// Static grants or denies without touching any device.
type Static struct {
	Grant bool
}

var errStaticDenied = errors.New("microphone access disabled by configuration")

func (s Static) RequestAccess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Grant {
		return errStaticDenied
	}
	return nil
}

// Gate performs the request exactly once per process.
type Gate struct {
	requester Requester
	recorder  Recorder
	notifier  notify.Notifier
	log       *slog.Logger

	once   sync.Once
	mu     sync.Mutex
	result Result
	err    error
}

func NewGate(requester Requester, recorder Recorder, notifier notify.Notifier, log *slog.Logger) *Gate {
	return &Gate{
		requester: requester,
		recorder:  recorder,
		notifier:  notifier,
		log:       logging.NewComponentLogger(log, "permission.gate"),
	}
}

// Request asks for access on the first call and returns the cached result
// afterwards. The returned error, if any, carries errorsx.ReasonMicDenied.
func (g *Gate) Request(ctx context.Context) (Result, error) {
	g.once.Do(func() {
		err := g.requester.RequestAccess(ctx)

		g.mu.Lock()
		if err != nil {
			g.result = Denied
			g.err = errorsx.Wrap(err, errorsx.ReasonMicDenied)
		} else {
			g.result = Granted
		}
		g.mu.Unlock()

		if err != nil {
			g.log.Warn("mic_permission_denied", slog.String("error", err.Error()))
			if nerr := notify.Send(ctx, g.notifier, notify.LevelWarning, DeniedMessage); nerr != nil {
				g.log.Warn("notify_failed", slog.String("error", nerr.Error()))
			}
		} else {
			g.log.Info("mic_permission_granted")
		}
		if g.recorder != nil {
			g.recorder.SetMicPermission(err == nil)
		}
	})
	return g.Result()
}

// Result returns the current outcome without requesting.
func (g *Gate) Result() (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, g.err
}
