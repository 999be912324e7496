package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
)

type linkObjectRequest struct {
	ObjectID string `json:"object_id"`
}

// linkEventObject is idempotent: linking the same (event, object) pair
// twice is not an error, matching the documented contract.
func (s *Server) linkEventObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket := vars["bucket"]
	eventID, err := strconv.ParseInt(vars["event"], 10, 64)
	if err != nil {
		writeErrorCode(w, apperr.CodeInvalidArgument, "event id must be an integer")
		return
	}
	var req linkObjectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	link := domain.EventObjectLink{
		BucketID:   bucket,
		EventID:    eventID,
		ObjectID:   req.ObjectID,
		Provenance: domain.ProvenanceManual,
		Confidence: 1.0,
	}
	if err := s.st.LinkEventToObject(r.Context(), link); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) unlinkEventObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket := vars["bucket"]
	objectID := vars["object_id"]
	eventID, err := strconv.ParseInt(vars["event"], 10, 64)
	if err != nil {
		writeErrorCode(w, apperr.CodeInvalidArgument, "event id must be an integer")
		return
	}
	if err := s.st.UnlinkEventFromObject(r.Context(), bucket, eventID, objectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) listEventObjects(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket := vars["bucket"]
	eventID, err := strconv.ParseInt(vars["event"], 10, 64)
	if err != nil {
		writeErrorCode(w, apperr.CodeInvalidArgument, "event id must be an integer")
		return
	}
	objects, err := s.st.ObjectsForEvent(r.Context(), bucket, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}
