// Package roster tracks students and their scan lifecycle. It is the
// persistence collaborator of the scan pipeline: it owns the
// one-live-document-per-student invariant and serializes scans per
// student.
package roster

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ScanStatus is the scan lifecycle state of one student.
type ScanStatus string

const (
	StatusNoScan  ScanStatus = "no_scan"
	StatusScanned ScanStatus = "scanned"
	StatusAbsent  ScanStatus = "absent"
	StatusMissing ScanStatus = "missing"
)

// valid reports whether s is one of the known states.
func (s ScanStatus) valid() bool {
	switch s {
	case StatusNoScan, StatusScanned, StatusAbsent, StatusMissing:
		return true
	}
	return false
}

// DocumentRecord points at a student's current scanned document.
type DocumentRecord struct {
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generated_at"`
	PageCount   int       `json:"page_count"`
	SizeBytes   int64     `json:"size_bytes"`
}

// Student is one roster entry.
type Student struct {
	ID       string          `json:"id"`
	RollNo   string          `json:"roll_no"`
	Name     string          `json:"name"`
	Status   ScanStatus      `json:"status"`
	Document *DocumentRecord `json:"document,omitempty"`
}

// Store is an in-memory student registry. Mutations returning a path
// hand the superseded document file back to the caller for deletion;
// the store itself never touches the filesystem.
type Store struct {
	mu       sync.RWMutex
	students map[string]*Student

	lockMu    sync.Mutex
	scanLocks map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		students:  make(map[string]*Student),
		scanLocks: make(map[string]*sync.Mutex),
	}
}

// Add registers a new student in NoScan state.
func (s *Store) Add(id, rollNo, name string) (*Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.students[id]; exists {
		return nil, fmt.Errorf("student %s already registered", id)
	}
	st := &Student{ID: id, RollNo: rollNo, Name: name, Status: StatusNoScan}
	s.students[id] = st
	return copyStudent(st), nil
}

// Get returns a snapshot of the student.
func (s *Store) Get(id string) (*Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.students[id]
	if !ok {
		return nil, false
	}
	return copyStudent(st), true
}

// List returns all students ordered by roll number.
func (s *Store) List() []*Student {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, copyStudent(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNo < out[j].RollNo })
	return out
}

// ReplaceDocument swaps in a new document record and marks the student
// scanned. It returns the path of the superseded document, if any, for
// the caller to delete once the new file is known durable.
func (s *Store) ReplaceDocument(id string, rec DocumentRecord) (prevPath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[id]
	if !ok {
		return "", fmt.Errorf("student %s not found", id)
	}
	if st.Document != nil {
		prevPath = st.Document.Path
	}
	st.Document = &rec
	st.Status = StatusScanned
	return prevPath, nil
}

// SetStatus moves the student to the given state. Absent and Missing
// force a reset: the document reference is purged and its path
// returned for deletion. Setting NoScan likewise drops any reference.
func (s *Store) SetStatus(id string, status ScanStatus) (purgedPath string, err error) {
	if !status.valid() {
		return "", fmt.Errorf("unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[id]
	if !ok {
		return "", fmt.Errorf("student %s not found", id)
	}
	if status == StatusScanned && st.Document == nil {
		return "", fmt.Errorf("cannot mark %s scanned without a document", id)
	}

	if status == StatusAbsent || status == StatusMissing || status == StatusNoScan {
		if st.Document != nil {
			purgedPath = st.Document.Path
			st.Document = nil
		}
	}
	st.Status = status
	return purgedPath, nil
}

// ScanLock returns the mutex serializing scans for one student. The
// pipeline core assumes at most one in-flight scan per student; this is
// where that guarantee lives.
func (s *Store) ScanLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.scanLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.scanLocks[id] = l
	}
	return l
}

func copyStudent(st *Student) *Student {
	out := *st
	if st.Document != nil {
		doc := *st.Document
		out.Document = &doc
	}
	return &out
}
