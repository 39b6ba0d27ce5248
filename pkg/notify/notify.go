// Package notify delivers transient, non-blocking user-facing notifications
// such as permission denials and failed session actions.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a single transient message.
type Notification struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier delivers notifications. Implementations must not block for long;
// slow sinks should be wrapped with Async.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(context.Context, Notification) error { return nil }

// Log writes notifications to a structured logger.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log}
}

func (l *Log) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	l.log.Log(ctx, level, "notification", slog.String("title", n.Title), slog.String("message", n.Message))
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, inner := range m {
		if inner == nil {
			continue
		}
		if err := inner.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Relay is a Multi that accepts notifiers after construction, for surfaces
// that are created after the component that notifies them.
type Relay struct {
	mu   sync.RWMutex
	list Multi
}

func (r *Relay) Add(n Notifier) {
	if n == nil {
		return
	}
	r.mu.Lock()
	r.list = append(r.list, n)
	r.mu.Unlock()
}

func (r *Relay) Notify(ctx context.Context, n Notification) error {
	r.mu.RLock()
	list := append(Multi(nil), r.list...)
	r.mu.RUnlock()
	return list.Notify(ctx, n)
}

// Async hands notifications to a background goroutine so a slow sink cannot
// stall the caller. Notifications are dropped when the queue is full.
type Async struct {
	inner   Notifier
	ch      chan Notification
	done    chan struct{}
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewAsync(inner Notifier, buffer int, timeout time.Duration, log *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 32
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Async{
		inner:   inner,
		ch:      make(chan Notification, buffer),
		done:    make(chan struct{}),
		log:     log,
		timeout: timeout,
	}
	go a.loop()
	return a
}

func (a *Async) Notify(_ context.Context, n Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.ch <- n:
	default:
		a.log.Warn("notification_dropped", slog.String("message", n.Message))
	}
	return nil
}

// Close drains queued notifications and stops the worker.
// Notifications sent after Close are dropped.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) loop() {
	defer close(a.done)
	for n := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.inner.Notify(ctx, n); err != nil {
			a.log.Warn("notification_failed", slog.String("error", err.Error()))
		}
		cancel()
	}
}

// Send stamps n and delivers it; a nil notifier is ignored.
func Send(ctx context.Context, notifier Notifier, level Level, message string) error {
	if notifier == nil {
		return nil
	}
	return notifier.Notify(ctx, Notification{
		Level:   level,
		Message: message,
		Time:    time.Now(),
	})
}
