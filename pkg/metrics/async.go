package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver moves delivery off the recording goroutine so provider
// callbacks never wait on a slow observer. Events that do not fit in the
// buffer are counted and dropped.
type AsyncObserver struct {
	inner   Observer
	dropped atomic.Int64

	mu     sync.RWMutex
	ch     chan MetricsEvent
	closed bool
	done   chan struct{}
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: inner,
		ch:    make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		for ev := range a.ch {
			a.inner.RecordEvent(ev)
		}
	}()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports how many events were lost to a full buffer.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close delivers what is buffered and then ignores further events.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
