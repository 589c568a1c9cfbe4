package daemon

import (
	"net/http"
	"strconv"
	"strings"

	"narrator/internal/api"
	"narrator/internal/logging"
	"narrator/internal/merge"
	"narrator/internal/queue"
	"narrator/internal/services"
)

func (s *apiServer) handleSubmitSession(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := services.WithOwnerID(r.Context(), req.OwnerID)
	sub, err := s.daemon.pipeline.SubmitLongText(ctx, req.OwnerID, req.Text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, sub)
}

func (s *apiServer) handlePrepareSession(w http.ResponseWriter, r *http.Request) {
	var req api.PrepareSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	prep, err := s.daemon.pipeline.PrepareSession(req.Text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prep)
}

func (s *apiServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	total := 0
	if value := strings.TrimSpace(r.URL.Query().Get("total")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid total")
			return
		}
		total = parsed
	}
	progress, err := s.daemon.pipeline.GetSegmentStatus(r.Context(), r.PathValue("id"), total)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *apiServer) handleGenerateSegment(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateSegmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	ctx := services.WithSessionID(services.WithOwnerID(r.Context(), req.OwnerID), id)
	result, err := s.daemon.pipeline.GenerateSegment(ctx, id, req.OwnerID, req.Index, req.Text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	dispatched, err := s.daemon.pipeline.ResumeSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ResumeSessionResponse{Dispatched: dispatched})
}

func (s *apiServer) handleMergeSession(w http.ResponseWriter, r *http.Request) {
	var req api.MergeSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := merge.ParseKind(req.Kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.daemon.pipeline.MergeSession(r.Context(), r.PathValue("id"), req.TotalSegments, req.OriginalText, kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleUnfinished(w http.ResponseWriter, r *http.Request) {
	found, err := s.daemon.pipeline.FindUnfinished(r.Context(), r.PathValue("ownerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.UnfinishedResponse{Sessions: found})
}

func (s *apiServer) handleLatestArtifact(w http.ResponseWriter, r *http.Request) {
	info, err := s.daemon.pipeline.LatestArtifact(r.Context(), r.PathValue("ownerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *apiServer) handleCleanupOwner(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.pipeline.CleanupOwnerAudio(r.Context(), r.PathValue("ownerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleSubmitWord(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitWordRequest
	if !s.decode(w, r, &req) {
		return
	}
	accepted, err := s.daemon.pipeline.SubmitWordTask(r.Context(), req.OwnerID, req.Word, req.Category)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.AcceptedResponse{Accepted: accepted})
}

func (s *apiServer) handleWordAudio(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.pipeline.WordAudio(r.Context(), r.PathValue("ownerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.WordAudioResponse{Records: api.FromWordAudio(records)})
}

func (s *apiServer) handleRequeueWord(w http.ResponseWriter, r *http.Request) {
	var req api.RequeueWordRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.daemon.pipeline.RequeueWord(r.Context(), r.PathValue("ownerId"), req.Category)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RequeueWordResponse{Task: api.FromWordTask(task)})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := queue.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(trimmed))
			return
		}
		statuses = append(statuses, status)
	}
	tasks, err := s.daemon.ListTasks(r.Context(), statuses)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Tasks: api.FromWordTasks(tasks)})
}

func (s *apiServer) handleReclaim(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.daemon.ReclaimStale(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReclaimResponse{Reclaimed: reclaimed})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.logger.Warn("test notification failed", logging.Error(err))
		s.writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: message})
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationTestResponse{Sent: sent, Message: message})
}
