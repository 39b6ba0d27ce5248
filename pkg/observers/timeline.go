// Package observers holds metrics observers that persist session artifacts.
package observers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/synapchat/pkg/metrics"
	"github.com/harunnryd/synapchat/pkg/redact"
)

// TimelineObserver appends every event tagged with a session id to
// <dir>/<session_id>.jsonl. Untagged events are ignored.
type TimelineObserver struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	files map[string]*os.File
}

func NewTimelineObserver(dir string, log *slog.Logger) *TimelineObserver {
	if log == nil {
		log = slog.Default()
	}
	return &TimelineObserver{dir: dir, log: log, files: make(map[string]*os.File)}
}

// RecordEvent implements metrics.Observer.
func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ev.Tags[metrics.TagSessionID]
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	entry := timelineEvent{
		Time:   ev.Time.UTC(),
		Event:  ev.Name,
		Value:  ev.Value,
		Tags:   withoutSession(ev.Tags),
		Fields: sanitizeFields(ev.Fields),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.fileLocked(sessionID)
	if f == nil {
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		o.log.Warn("timeline_write_failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
}

// Close closes any open files.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

// Purge deletes timelines last written before maxAge ago and reports how
// many went. Timelines of sessions this observer still holds open are kept.
func (o *TimelineObserver) Purge(maxAge time.Duration) (int, error) {
	if strings.TrimSpace(o.dir) == "" || maxAge <= 0 {
		return 0, nil
	}
	paths, err := filepath.Glob(filepath.Join(o.dir, "*.jsonl"))
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs error
	for _, path := range paths {
		if o.files[strings.TrimSuffix(filepath.Base(path), ".jsonl")] != nil {
			continue
		}
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			errs = errors.Join(errs, err)
			continue
		case info.IsDir() || !info.ModTime().Before(cutoff):
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}

type timelineEvent struct {
	Time   time.Time         `json:"time"`
	Event  string            `json:"event"`
	Value  float64           `json:"value,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) fileLocked(sessionID string) *os.File {
	safe := sanitizeID(sessionID)
	if safe == "" {
		return nil
	}
	if f := o.files[safe]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		o.log.Warn("timeline_dir_failed", slog.String("error", err.Error()))
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, safe+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		o.log.Warn("timeline_open_failed", slog.String("error", err.Error()))
		return nil
	}
	o.files[safe] = f
	return f
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func withoutSession(in map[string]string) map[string]string {
	if len(in) <= 1 {
		return nil
	}
	out := make(map[string]string, len(in)-1)
	for k, v := range in {
		if k != metrics.TagSessionID {
			out[k] = v
		}
	}
	return out
}

func sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
