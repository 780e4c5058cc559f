package archive

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Readm/commit_sim/core"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func summary(session string, seq int, outcome core.Outcome) *core.TransactionSummary {
	return &core.TransactionSummary{
		ID:        fmt.Sprintf("%s-tx-%d", session, seq),
		SessionID: session,
		Sequence:  seq,
		Scenario:  "sandbox",
		Outcome:   outcome,
		Verdict:   core.VerdictPassed,
		States:    map[string]core.State{"C": outcome.Done()},
		Logs:      map[string][]core.LogRecord{"C": {{At: 0, Record: "PREPARE"}}},
		Remaining: map[string]int{"link": -1},
	}
}

func TestArchiveAndGet(t *testing.T) {
	s := openMem(t)
	r, err := s.Archive(summary("s1", 1, core.OutcomeCommit))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := s.Get(r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary.Outcome != core.OutcomeCommit || got.Summary.States["C"] != core.StateDoneCommit {
		t.Fatalf("unexpected report %+v", got.Summary)
	}
	if len(got.Summary.Logs["C"]) != 1 || !got.ArchivedAt.Equal(r.ArchivedAt) {
		t.Fatalf("report did not survive storage: %+v", got)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirstAndBySession(t *testing.T) {
	s := openMem(t)
	s.Archive(summary("s1", 1, core.OutcomeCommit))
	s.Archive(summary("s2", 1, core.OutcomeAbort))
	s.Archive(summary("s1", 2, core.OutcomeAbort))

	all, err := s.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s1-tx-2" || all[2].ID != "s1-tx-1" {
		t.Fatalf("unexpected order: %v", ids(all))
	}
	two, _ := s.List(2)
	if len(two) != 2 {
		t.Fatalf("limit not applied: %v", ids(two))
	}
	sess, err := s.ListSession("s1")
	if err != nil {
		t.Fatalf("ListSession: %v", err)
	}
	if len(sess) != 2 || sess[0].Summary.Sequence != 1 || sess[1].Summary.Sequence != 2 {
		t.Fatalf("unexpected session listing: %v", ids(sess))
	}
	if n, _ := s.Count(); n != 3 {
		t.Fatalf("expected 3 reports, got %d", n)
	}
}

func TestDelete(t *testing.T) {
	s := openMem(t)
	r, _ := s.Archive(summary("s1", 1, core.OutcomeCommit))
	if err := s.Delete(r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.Count(); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
	if list, _ := s.List(0); len(list) != 0 {
		t.Fatalf("index entries should be removed too")
	}
	if list, _ := s.ListSession("s1"); len(list) != 0 {
		t.Fatalf("session index should be removed too")
	}
	if _, err := s.Get(r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleting twice: expected ErrNotFound, got %v", err)
	}
}

func TestPutRejectsIncompleteReports(t *testing.T) {
	s := openMem(t)
	if err := s.Put(RunReport{}); err == nil {
		t.Fatalf("empty id should be rejected")
	}
	if err := s.Put(RunReport{ID: "x"}); err == nil {
		t.Fatalf("missing summary should be rejected")
	}
	if _, err := s.Archive(nil); err == nil {
		t.Fatalf("nil summary should be rejected")
	}
}

func ids(rs []RunReport) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
