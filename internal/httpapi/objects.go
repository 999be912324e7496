package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// listObjects supports the documented type/q/start/end/limit filters plus
// an enrichment: data_query, a gjson path=value pair (e.g.
// "shipment.carrier=UPS") matched against each object's Data blob after the
// store-level filter runs, for ad-hoc inspection the structured ObjectFilter
// fields don't cover.
func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ObjectFilter{
		Type:  q.Get("type"),
		Query: q.Get("q"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeErrorCode(w, apperr.CodeInvalidArgument, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	start, hasStart := parseTimeParam(q.Get("start"))
	end, hasEnd := parseTimeParam(q.Get("end"))
	if hasStart || hasEnd {
		filter.Range = &store.TimeRange{Start: start, End: end}
	}

	objects, err := s.st.ListObjects(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if dq := q.Get("data_query"); dq != "" {
		objects = filterByDataQuery(objects, dq)
	}
	writeJSON(w, http.StatusOK, objects)
}

func filterByDataQuery(objects []domain.Object, dq string) []domain.Object {
	path, want, ok := splitDataQuery(dq)
	if !ok {
		return objects
	}
	out := objects[:0]
	for _, o := range objects {
		raw, err := json.Marshal(o.Data)
		if err != nil {
			continue
		}
		if gjson.GetBytes(raw, path).String() == want {
			out = append(out, o)
		}
	}
	return out
}

func splitDataQuery(dq string) (path, value string, ok bool) {
	for i := 0; i < len(dq); i++ {
		if dq[i] == '=' {
			return dq[:i], dq[i+1:], true
		}
	}
	return "", "", false
}

func parseTimeParam(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) createObject(w http.ResponseWriter, r *http.Request) {
	var o domain.Object
	if err := decodeJSON(r.Body, &o); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.st.CreateObject(r.Context(), o)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.st.GetObject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) updateObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var o domain.Object
	if err := decodeJSON(r.Body, &o); err != nil {
		writeError(w, err)
		return
	}
	o.ID = id
	updated, err := s.st.UpdateObject(r.Context(), o)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.st.DeleteObject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) eventsForObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()
	var rng *store.TimeRange
	if start, ok := parseTimeParam(q.Get("start")); ok {
		end, _ := parseTimeParam(q.Get("end"))
		rng = &store.TimeRange{Start: start, End: end}
	}
	events, err := s.st.EventsForObject(r.Context(), id, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
