// Package journal keeps a record of every conversation session in BadgerDB.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/harunnryd/synapchat/pkg/errorsx"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/voice"
)

const keyPrefix = "session/"

var ErrNotFound = errors.New("journal: session not found")

// Outcome describes how a session ended.
type Outcome string

const (
	OutcomeActive       Outcome = "active"
	OutcomeEnded        Outcome = "ended"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeFailed       Outcome = "failed"
	OutcomeError        Outcome = "error"
	OutcomeAborted      Outcome = "aborted"
)

type Record struct {
	SessionID   string     `json:"session_id" yaml:"session_id"`
	AgentID     string     `json:"agent_id" yaml:"agent_id"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" yaml:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Outcome     Outcome    `json:"outcome" yaml:"outcome"`
	Messages    int        `json:"messages" yaml:"messages"`
	Errors      []string   `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Duration is the connected time, or zero when the session never connected.
func (r Record) Duration() time.Duration {
	if r.ConnectedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.ConnectedAt)
}

type Options struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// Store persists session records. It also acts as a voice.Listener that
// builds records from controller state changes.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	mu      sync.Mutex
	current *Record
	sawErr  bool
}

func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal: Options.Dir is required for on-disk mode")
	}
	log := logging.NewComponentLogger(opts.Logger, "journal")
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{log: log})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonJournalWrite)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+rec.SessionID), data)
	})
	if err != nil {
		return errorsx.Errorf(errorsx.ReasonJournalWrite, "put %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, sessionID string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns records newest first; limit <= 0 returns all of them.
func (s *Store) List(_ context.Context, limit int) ([]Record, error) {
	var out []Record
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OnStateChange implements voice.Listener.
func (s *Store) OnStateChange(change voice.StateChange) {
	snap := change.Snapshot

	s.mu.Lock()
	rec, changed := s.applyLocked(change)
	s.mu.Unlock()

	if !changed {
		return
	}
	if err := s.Put(context.Background(), rec); err != nil {
		s.log.Error("journal_write_failed",
			slog.String("session_id", snap.SessionID),
			slog.String("error", err.Error()))
	}
}

// OnSessionMessage implements voice.MessageListener.
func (s *Store) OnSessionMessage(sessionID string, _ voice.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.SessionID == sessionID {
		s.current.Messages++
	}
}

func (s *Store) applyLocked(change voice.StateChange) (Record, bool) {
	snap := change.Snapshot
	at := snap.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}

	if change.To == voice.StateConnecting && change.From != voice.StateConnecting {
		s.current = &Record{
			SessionID: snap.SessionID,
			AgentID:   snap.AgentID,
			StartedAt: at,
			Outcome:   OutcomeActive,
		}
		s.sawErr = false
		return *s.current, true
	}

	rec := s.current
	if rec == nil || rec.SessionID != snap.SessionID {
		return Record{}, false
	}

	changed := false
	if snap.LastError != "" && (len(rec.Errors) == 0 || rec.Errors[len(rec.Errors)-1] != snap.LastError) {
		rec.Errors = append(rec.Errors, snap.LastError)
		changed = true
	}
	if change.From == change.To {
		return *rec, changed
	}

	switch change.To {
	case voice.StateConnected:
		t := at
		rec.ConnectedAt = &t
		s.sawErr = false
	case voice.StateError:
		s.sawErr = true
		if !snap.SessionOpen {
			t := at
			rec.EndedAt = &t
			rec.Outcome = OutcomeFailed
			s.current = nil
		}
	case voice.StateIdle:
		t := at
		rec.EndedAt = &t
		switch {
		case s.sawErr:
			rec.Outcome = OutcomeError
		case change.From == voice.StateDisconnecting:
			rec.Outcome = OutcomeEnded
		case change.From == voice.StateConnecting:
			rec.Outcome = OutcomeAborted
		default:
			rec.Outcome = OutcomeDisconnected
		}
		s.current = nil
	}
	return *rec, true
}

// badgerLogger routes badger output through slog, dropping debug and info.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error(fmt.Sprintf("badger: "+f, v...))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf("badger: "+f, v...))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

var (
	_ voice.Listener        = (*Store)(nil)
	_ voice.MessageListener = (*Store)(nil)
)
