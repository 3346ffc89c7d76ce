package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/mkrall/examscan/internal/roster"
	"github.com/mkrall/examscan/internal/scan"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger parts spill to disk.
const maxUploadMemory = 64 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "0.1.0",
	})
}

// Roster

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"students": s.store.List(),
	})
}

func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		RollNo string `json:"roll_no"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.RollNo == "" {
		writeError(w, http.StatusBadRequest, "id and roll_no are required")
		return
	}

	student, err := s.store.Add(req.ID, req.RollNo, req.Name)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status roster.ScanStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	purgedPath, err := s.store.SetStatus(id, req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Absent/Missing reset the student; their document file goes away
	// together with the reference.
	if purgedPath != "" {
		if err := os.Remove(purgedPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove purged document", "path", purgedPath, "error", err)
		}
	}

	student, _ := s.store.Get(id)
	writeJSON(w, http.StatusOK, student)
}

// Scanning

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	student, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no images uploaded")
		return
	}

	// Upload order is page order; the first file is the cover sheet.
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload part")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload part")
			return
		}
		images = append(images, data)
	}

	// The controller assumes at most one in-flight scan per student.
	lock := s.store.ScanLock(id)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.controller.Run(r.Context(), scan.Request{
		StudentID:   student.ID,
		RollNo:      student.RollNo,
		StudentName: student.Name,
		Images:      images,
	})
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrNoImages),
			errors.Is(err, scan.ErrTooManyImages),
			errors.Is(err, scan.ErrUnsupportedType):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	student, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	if student.Document == nil {
		writeError(w, http.StatusNotFound, "student has no scanned document")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, student.Document.Path)
}
