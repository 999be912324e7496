package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
)

func (s *Server) listPendingTraining(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErrorCode(w, apperr.CodeInvalidArgument, "limit must be an integer")
			return
		}
		limit = n
	}
	bucket := r.URL.Query().Get("bucket")
	tasks, err := s.st.ListPendingReviewTasks(r.Context(), limit, bucket)
	if err != nil {
		writeError(w, err)
		return
	}
	if bucket != "" {
		if total, cErr := s.st.CountReviewTasks(r.Context(), bucket); cErr == nil {
			w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
		}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// deleteReviewTask discards a resolved task from the training queue. The
// task's own bucket is looked up first so the delete stays scoped to the
// bucket it was raised against, matching the confirm/reject/correct handlers'
// pattern of resolving the task before acting on it.
func (s *Server) deleteReviewTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["task_id"]
	task, err := s.st.GetReviewTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.st.DeleteReviewTask(r.Context(), task.BucketID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// confirmTraining accepts the candidate exactly as the LLM proposed it: the
// object is created (or reused) under its proposed type/identifier and
// manually linked to the originating event, same as an auto-linked
// high-confidence item would have been.
func (s *Server) confirmTraining(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["task_id"]
	task, err := s.st.GetReviewTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	obj, err := s.st.UpsertObject(r.Context(), task.ObjectType, task.Identifier, map[string]any{task.IdentifierKey: task.Identifier}, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.st.LinkEventToObject(r.Context(), domain.EventObjectLink{
		BucketID:   task.BucketID,
		EventID:    task.EventID,
		ObjectID:   obj.ID,
		Provenance: domain.ProvenanceManual,
		Confidence: 1.0,
	}); err != nil {
		writeError(w, err)
		return
	}

	task.Status = domain.ReviewStatusConfirmed
	updated, err := s.st.UpdateReviewTask(r.Context(), task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type rejectTrainingRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) rejectTraining(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["task_id"]
	task, err := s.st.GetReviewTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req rejectTrainingRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	task.Status = domain.ReviewStatusRejected
	if req.Reason != "" {
		task.Reason = req.Reason
	}
	updated, err := s.st.UpdateReviewTask(r.Context(), task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type correctTrainingRequest struct {
	ObjectType    string `json:"object_type,omitempty"`
	Name          string `json:"name,omitempty"`
	IdentifierKey string `json:"identifier_key,omitempty"`
}

// correctTraining links the event to an object under a human-supplied type
// and name instead of the LLM's proposal, recording the task as confirmed
// against the corrected identity.
func (s *Server) correctTraining(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["task_id"]
	task, err := s.st.GetReviewTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req correctTrainingRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}

	objType := task.ObjectType
	if req.ObjectType != "" {
		objType = req.ObjectType
	}
	name := task.Identifier
	if req.Name != "" {
		name = req.Name
	}
	identifierKey := task.IdentifierKey
	if req.IdentifierKey != "" {
		identifierKey = req.IdentifierKey
	}

	obj, err := s.st.UpsertObject(r.Context(), objType, name, map[string]any{identifierKey: name}, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.st.LinkEventToObject(r.Context(), domain.EventObjectLink{
		BucketID:   task.BucketID,
		EventID:    task.EventID,
		ObjectID:   obj.ID,
		Provenance: domain.ProvenanceManual,
		Confidence: 1.0,
	}); err != nil {
		writeError(w, err)
		return
	}

	task.Status = domain.ReviewStatusConfirmed
	task.ObjectType = objType
	task.Identifier = name
	task.IdentifierKey = identifierKey
	updated, err := s.st.UpdateReviewTask(r.Context(), task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
