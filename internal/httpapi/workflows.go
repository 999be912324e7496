package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/processlens/engine/internal/domain"
)

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	workflows, err := s.st.ListWorkflows(r.Context(), includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf domain.Workflow
	if err := decodeJSON(r.Body, &wf); err != nil {
		writeError(w, err)
		return
	}
	if wf.State == "" {
		wf.State = domain.WorkflowDraft
	}
	created, err := s.st.CreateWorkflow(r.Context(), wf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.st.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var wf domain.Workflow
	if err := decodeJSON(r.Body, &wf); err != nil {
		writeError(w, err)
		return
	}
	wf.ID = id
	updated, err := s.st.UpdateWorkflow(r.Context(), wf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.st.DeleteWorkflow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type workflowObjectRequest struct {
	ObjectID string `json:"object_id"`
}

func (s *Server) addWorkflowObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req workflowObjectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.st.AddWorkflowObject(r.Context(), id, req.ObjectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) removeWorkflowObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.st.RemoveWorkflowObject(r.Context(), vars["id"], vars["obj"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) listOccurrences(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	occs, err := s.st.ListOccurrences(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occs)
}

func (s *Server) getOccurrence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["occ_id"]
	occ, err := s.st.GetOccurrence(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}
