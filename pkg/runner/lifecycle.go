package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("runner: already started")
	ErrDrainTimeout   = errors.New("runner: drain timeout")
)

type Options struct {
	Banner   BannerOptions
	Hooks    Hooks
	Services []Service
	// Drainers run in order once the runner stops.
	Drainers []Drainer
	Timeout  time.Duration
	Logger   *slog.Logger
}

type LifecycleRunner struct {
	state    int32
	ctx      context.Context
	cancel   context.CancelFunc
	onceStop sync.Once
	opts     Options
	log      *slog.Logger
	stopErr  error
}

func NewLifecycleRunner(opts Options) *LifecycleRunner {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LifecycleRunner{
		state:  int32(StateNew),
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		log:    opts.Logger.With(slog.String("component", "runner")),
	}
}

// Run starts every service and blocks until ctx is done, Stop is called, or
// any service returns. The first service error is returned, joined with any
// drain failure.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return ErrAlreadyStarted
	}
	PrintBanner(r.opts.Banner)
	if ctx != nil {
		r.cancel()
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.opts.Hooks.OnStart != nil {
		r.opts.Hooks.OnStart()
	}
	r.setState(StateRunning)

	errCh := make(chan error, len(r.opts.Services))
	var wg sync.WaitGroup
	for _, svc := range r.opts.Services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			errCh <- svc.Run(r.ctx)
		}(svc)
	}

	var runErr error
	if len(r.opts.Services) == 0 {
		<-r.ctx.Done()
	} else {
		select {
		case <-r.ctx.Done():
		case runErr = <-errCh:
		}
	}
	r.cancel()
	wg.Wait()

	return errors.Join(runErr, r.stop())
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		r.log.Info("draining")
		for _, d := range r.opts.Drainers {
			if d == nil {
				continue
			}
			done := make(chan error, 1)
			go func() {
				done <- d.Drain()
			}()
			select {
			case err := <-done:
				if err != nil {
					r.log.Warn("drain failed", slog.String("error", err.Error()))
					r.stopErr = errors.Join(r.stopErr, err)
				}
			case <-time.After(r.opts.Timeout):
				r.stopErr = errors.Join(r.stopErr, ErrDrainTimeout)
			}
		}
		if r.opts.Hooks.OnStop != nil {
			r.opts.Hooks.OnStop()
		}
		r.setState(StateStopped)
		r.log.Info("stopped")
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}

var _ Runner = (*LifecycleRunner)(nil)
