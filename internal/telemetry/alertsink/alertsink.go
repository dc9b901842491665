// Package alertsink implements the alert sink from spec.md §6: accepts
// (SecurityEvent, message) tuples, appends them to an in-memory list and a
// log line, and persists them to an embedded bbolt store so alerts survive
// a restart. Grounded on archive/internal/storage/metrics.go's bbolt
// bucket-per-category design, simplified to the single bucket this sink
// needs.
package alertsink

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

var alertsBucket = []byte("alerts")

// Alert is a single acknowledgeable alert entry.
type Alert struct {
	Event        event.SecurityEvent
	Message      string
	Timestamp    time.Time
	Acknowledged bool
}

// Sink is the in-memory + bbolt-backed alert store.
type Sink struct {
	mu     sync.Mutex
	alerts []Alert

	db  *bbolt.DB
	log *logsink.Sink
}

// Config controls where the sink persists alerts.
type Config struct {
	// DBPath is the bbolt file path. Empty disables persistence — the sink
	// still works in-memory only, useful for tests.
	DBPath string
}

// New opens (or creates) the bbolt store at cfg.DBPath and loads any
// previously persisted alerts into memory.
func New(cfg Config, log *logsink.Sink) (*Sink, error) {
	if log == nil {
		log = logsink.Nop()
	}
	s := &Sink{log: log}

	if cfg.DBPath == "" {
		return s, nil
	}

	db, err := bbolt.Open(cfg.DBPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("alertsink: open db: %w", err)
	}
	s.db = db

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(alertsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("alertsink: create bucket: %w", err)
	}

	if err := s.loadExisting(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Sink) loadExisting() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(alertsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return nil // skip corrupt entries rather than fail startup
			}
			s.alerts = append(s.alerts, a)
			return nil
		})
	})
}

// Emit appends a new alert for ev with the given message, logs it, and
// persists it if a backing store is configured.
func (s *Sink) Emit(ev event.SecurityEvent, message string) {
	a := Alert{Event: ev, Message: message, Timestamp: time.Now()}

	s.mu.Lock()
	index := len(s.alerts)
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()

	s.log.Warningw(message, "event_type", string(ev.Type), "target_path", ev.TargetPath)

	if s.db != nil {
		s.persist(index, a)
	}
}

func (s *Sink) persist(index int, a Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		s.log.Errorw("alertsink: marshal failed", "error", err.Error())
		return
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(alertsBucket)
		key := []byte(fmt.Sprintf("%020d", index))
		return b.Put(key, data)
	})
	if err != nil {
		s.log.Errorw("alertsink: persist failed", "error", err.Error())
	}
}

// Acknowledge marks the alert at index as acknowledged.
func (s *Sink) Acknowledge(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.alerts) {
		return false
	}
	s.alerts[index].Acknowledged = true
	if s.db != nil {
		s.persist(index, s.alerts[index])
	}
	return true
}

// Clear empties the in-memory alert list and the backing store.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.alerts = nil
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(alertsBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(alertsBucket)
		return err
	})
}

// List returns a snapshot copy of all alerts.
func (s *Sink) List() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Close releases the backing store, if any.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
