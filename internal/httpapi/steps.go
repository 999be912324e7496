package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/processlens/engine/internal/domain"
)

func (s *Server) listSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.st.ListSteps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (s *Server) createStep(w http.ResponseWriter, r *http.Request) {
	var step domain.Step
	if err := decodeJSON(r.Body, &step); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.st.CreateStep(r.Context(), step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getStep(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	step, err := s.st.GetStep(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) updateStep(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var step domain.Step
	if err := decodeJSON(r.Body, &step); err != nil {
		writeError(w, err)
		return
	}
	step.ID = id
	updated, err := s.st.UpdateStep(r.Context(), step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteStep(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.st.DeleteStep(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type stepObjectRequest struct {
	ObjectID string `json:"object_id"`
}

func (s *Server) addStepObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req stepObjectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.st.AddStepObject(r.Context(), id, req.ObjectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) removeStepObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.st.RemoveStepObject(r.Context(), vars["id"], vars["obj"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
