package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/processlens/engine/internal/domain"
)

func (s *Server) listObjectTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.st.ListObjectTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) createObjectType(w http.ResponseWriter, r *http.Request) {
	var ot domain.ObjectType
	if err := decodeJSON(r.Body, &ot); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.st.CreateObjectType(r.Context(), ot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getObjectType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["id"]
	ot, err := s.st.GetObjectType(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ot)
}

func (s *Server) updateObjectType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["id"]
	var ot domain.ObjectType
	if err := decodeJSON(r.Body, &ot); err != nil {
		writeError(w, err)
		return
	}
	ot.Name = name
	updated, err := s.st.UpdateObjectType(r.Context(), ot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteObjectType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["id"]
	if err := s.st.DeleteObjectType(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
