package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Jeffrey0117/Ytify/internal/download"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/queue"
	"github.com/Jeffrey0117/Ytify/internal/service"
	"github.com/Jeffrey0117/Ytify/internal/statusmirror"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// DownloadRequest is the body of POST /api/download.
type DownloadRequest struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	AudioOnly bool   `json:"audio_only"`
	Mode      string `json:"mode"`
}

// Params converts the request to job parameters. audio_only wins over
// mode.
func (r DownloadRequest) Params() model.Params {
	mode := model.ParseMode(r.Mode)
	if r.AudioOnly {
		mode = model.ModeAudio
	}
	return model.Params{
		Target:  strings.TrimSpace(r.URL),
		Quality: model.ParseTier(r.Format),
		Mode:    mode,
	}
}

// DownloadResponse is returned for an accepted download.
type DownloadResponse struct {
	TaskID   string       `json:"task_id"`
	Status   model.Status `json:"status"`
	Position int          `json:"position"`
	Message  string       `json:"message"`
}

// StatusResponse is a job snapshot enriched with its queue position and
// the live retry session while it runs.
type StatusResponse struct {
	model.JobSnapshot
	Position *int              `json:"position,omitempty"`
	Session  *download.Session `json:"session,omitempty"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, pos, err := s.svc.Submit(req.Params())
	switch {
	case errors.Is(err, service.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "download service unavailable")
		return
	}

	resp := DownloadResponse{TaskID: job.ID, Status: model.StatusRunning, Position: pos, Message: "Download started"}
	if pos > 0 {
		resp.Status = model.StatusQueued
		resp.Message = "Download queued"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.svc.Job(id)
	if errors.Is(err, service.ErrJobNotFound) {
		s.mirroredStatus(w, r, id)
		return
	}

	resp := StatusResponse{JobSnapshot: job.Snapshot()}
	if pos, ok := s.svc.Position(id); ok {
		resp.Position = &pos
	}
	if sess, ok := s.svc.Session(id); ok {
		resp.Session = &sess
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) mirroredStatus(w http.ResponseWriter, r *http.Request, id string) {
	if s.mirror == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	fields, err := s.mirror.Lookup(r.Context(), id)
	switch {
	case errors.Is(err, statusmirror.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
		return
	case err != nil:
		s.logger.Warn("status mirror lookup failed", "job_id", id, "error", err)
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	fields["task_id"] = id
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Jobs())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	outcome, err := s.svc.Cancel(id)
	if errors.Is(err, service.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if outcome == queue.CancelNotFound {
		writeError(w, http.StatusConflict, "task already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id, "outcome": outcome.String()})
}
