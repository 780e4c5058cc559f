package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/Readm/commit_sim/core"
)

// ErrNotFound is returned when no report exists under an id.
var ErrNotFound = errors.New("run report not found")

const (
	runPrefix     = "run:"  // run:<id> -> report JSON
	timePrefix    = "time:" // time:<archivedAt nanos>:<id> -> id
	sessionPrefix = "sess:" // sess:<session>:<sequence>:<id> -> id
)

// RunReport is one archived, graded transaction.
type RunReport struct {
	ID         string                   `json:"id"`
	ArchivedAt time.Time                `json:"archivedAt"`
	Summary    *core.TransactionSummary `json:"summary"`
}

// Options configure the store.
type Options struct {
	// InMemory keeps everything in a memory filesystem; dir is ignored.
	InMemory bool
	// Sync makes every write durable before returning.
	Sync bool
}

// Store archives run reports in pebble.
type Store struct {
	db    *pebble.DB
	write *pebble.WriteOptions
	now   func() time.Time
}

// Open opens or creates a store in dir.
func Open(dir string, opts Options) (*Store, error) {
	popts := &pebble.Options{}
	if opts.InMemory {
		popts.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, fmt.Errorf("archive directory is empty")
	}
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", dir, err)
	}
	write := pebble.NoSync
	if opts.Sync {
		write = pebble.Sync
	}
	return &Store{db: db, write: write, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

func timeKey(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", timePrefix, at.UnixNano(), id))
}

func sessionKey(sessionID string, seq int, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d:%s", sessionPrefix, sessionID, seq, id))
}

// Archive wraps summary into a report and stores it.
func (s *Store) Archive(summary *core.TransactionSummary) (RunReport, error) {
	if summary == nil {
		return RunReport{}, fmt.Errorf("archive: summary is nil")
	}
	r := RunReport{ID: summary.ID, ArchivedAt: s.now().UTC(), Summary: summary}
	return r, s.Put(r)
}

// Put stores a report and its indexes atomically.
func (s *Store) Put(r RunReport) error {
	if r.ID == "" {
		return fmt.Errorf("archive: report id is empty")
	}
	if r.Summary == nil {
		return fmt.Errorf("archive: report %s has no summary", r.ID)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", r.ID, err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(runKey(r.ID), data, nil); err != nil {
		return err
	}
	if err := batch.Set(timeKey(r.ArchivedAt, r.ID), []byte(r.ID), nil); err != nil {
		return err
	}
	if err := batch.Set(sessionKey(r.Summary.SessionID, r.Summary.Sequence, r.ID), []byte(r.ID), nil); err != nil {
		return err
	}
	if err := batch.Commit(s.write); err != nil {
		return fmt.Errorf("archive: commit %s: %w", r.ID, err)
	}
	return nil
}

// Get loads the report stored under id.
func (s *Store) Get(id string) (RunReport, error) {
	data, closer, err := s.db.Get(runKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return RunReport{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunReport{}, err
	}
	defer closer.Close()
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return RunReport{}, fmt.Errorf("archive: decode %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit reports, newest first. A non-positive limit returns all.
func (s *Store) List(limit int) ([]RunReport, error) {
	ids, err := s.scanIDs([]byte(timePrefix), true, limit)
	if err != nil {
		return nil, err
	}
	return s.load(ids)
}

// ListSession returns the reports of one session in transaction order.
func (s *Store) ListSession(sessionID string) ([]RunReport, error) {
	ids, err := s.scanIDs([]byte(sessionPrefix+sessionID+":"), false, 0)
	if err != nil {
		return nil, err
	}
	return s.load(ids)
}

// Count returns the number of stored reports.
func (s *Store) Count() (int, error) {
	ids, err := s.scanIDs([]byte(runPrefix), false, 0)
	return len(ids), err
}

// Delete removes a report and its index entries.
func (s *Store) Delete(id string) error {
	r, err := s.Get(id)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, key := range [][]byte{
		runKey(id),
		timeKey(r.ArchivedAt, id),
		sessionKey(r.Summary.SessionID, r.Summary.Sequence, id),
	} {
		if err := batch.Delete(key, nil); err != nil {
			return fmt.Errorf("archive: delete %s: %w", id, err)
		}
	}
	if err := batch.Commit(s.write); err != nil {
		return fmt.Errorf("archive: commit delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) load(ids []string) ([]RunReport, error) {
	out := make([]RunReport, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// scanIDs walks keys under prefix. Index entries hold the id as value; for
// run keys the id is the key suffix.
func (s *Store) scanIDs(prefix []byte, reverse bool, limit int) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: iterate %q: %w", prefix, err)
	}
	defer iter.Close()

	step := iter.Next
	valid := iter.First()
	if reverse {
		step = iter.Prev
		valid = iter.Last()
	}
	var ids []string
	runs := string(prefix) == runPrefix
	for ; valid; valid = step() {
		if runs {
			ids = append(ids, string(iter.Key()[len(prefix):]))
		} else {
			ids = append(ids, string(iter.Value()))
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, iter.Error()
}

func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
