package roster

import (
	"testing"
	"time"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	if _, err := s.Add("s1", "R001", "Asha"); err != nil {
		t.Fatalf("add: %v", err)
	}
	return s
}

func TestAddAndGet(t *testing.T) {
	s := seeded(t)

	st, ok := s.Get("s1")
	if !ok {
		t.Fatal("student not found")
	}
	if st.Status != StatusNoScan {
		t.Fatalf("new student should be no_scan, got %s", st.Status)
	}
	if st.Document != nil {
		t.Fatal("new student should have no document")
	}

	if _, err := s.Add("s1", "R001", "Asha"); err == nil {
		t.Fatal("duplicate add should fail")
	}
	if _, ok := s.Get("ghost"); ok {
		t.Fatal("unknown student should not be found")
	}
}

func TestReplaceDocument(t *testing.T) {
	s := seeded(t)

	prev, err := s.ReplaceDocument("s1", DocumentRecord{Path: "/docs/a.pdf", GeneratedAt: time.Now(), PageCount: 3})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if prev != "" {
		t.Fatalf("first document should supersede nothing, got %q", prev)
	}

	st, _ := s.Get("s1")
	if st.Status != StatusScanned {
		t.Fatalf("expected scanned, got %s", st.Status)
	}
	if st.Document == nil || st.Document.Path != "/docs/a.pdf" {
		t.Fatalf("document not recorded: %+v", st.Document)
	}

	prev, err = s.ReplaceDocument("s1", DocumentRecord{Path: "/docs/b.pdf", PageCount: 4})
	if err != nil {
		t.Fatalf("replace again: %v", err)
	}
	if prev != "/docs/a.pdf" {
		t.Fatalf("expected superseded path /docs/a.pdf, got %q", prev)
	}

	st, _ = s.Get("s1")
	if st.Document.Path != "/docs/b.pdf" || st.Document.PageCount != 4 {
		t.Fatalf("live document not replaced: %+v", st.Document)
	}
}

func TestAbsentPurgesDocument(t *testing.T) {
	s := seeded(t)
	if _, err := s.ReplaceDocument("s1", DocumentRecord{Path: "/docs/a.pdf"}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	purged, err := s.SetStatus("s1", StatusAbsent)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if purged != "/docs/a.pdf" {
		t.Fatalf("expected purged path, got %q", purged)
	}

	st, _ := s.Get("s1")
	if st.Status != StatusAbsent {
		t.Fatalf("expected absent, got %s", st.Status)
	}
	if st.Document != nil {
		t.Fatal("absent student must have no document reference")
	}
}

func TestSetStatusValidation(t *testing.T) {
	s := seeded(t)

	if _, err := s.SetStatus("s1", "on-holiday"); err == nil {
		t.Fatal("unknown status should fail")
	}
	if _, err := s.SetStatus("ghost", StatusAbsent); err == nil {
		t.Fatal("unknown student should fail")
	}
	if _, err := s.SetStatus("s1", StatusScanned); err == nil {
		t.Fatal("cannot mark scanned without a document")
	}
}

func TestListOrderedByRoll(t *testing.T) {
	s := NewStore()
	s.Add("b", "R002", "B")
	s.Add("c", "R003", "C")
	s.Add("a", "R001", "A")

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 students, got %d", len(list))
	}
	for i, want := range []string{"R001", "R002", "R003"} {
		if list[i].RollNo != want {
			t.Fatalf("position %d: got %s, want %s", i, list[i].RollNo, want)
		}
	}
}

func TestScanLockIsPerStudent(t *testing.T) {
	s := seeded(t)
	if s.ScanLock("s1") != s.ScanLock("s1") {
		t.Fatal("same student must share one lock")
	}
	if s.ScanLock("s1") == s.ScanLock("s2") {
		t.Fatal("different students must not share a lock")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := seeded(t)
	s.ReplaceDocument("s1", DocumentRecord{Path: "/docs/a.pdf"})

	st, _ := s.Get("s1")
	st.Document.Path = "/mutated.pdf"
	st.Status = StatusMissing

	fresh, _ := s.Get("s1")
	if fresh.Document.Path != "/docs/a.pdf" || fresh.Status != StatusScanned {
		t.Fatal("store state leaked through snapshot")
	}
}
