package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/processlens/engine/internal/domain"
)

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]
	job, err := s.st.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func jobView(j domain.AnalysisJob) map[string]any {
	view := map[string]any{
		"state":    j.Status,
		"progress": j.Progress,
	}
	if j.Error != "" {
		view["error"] = j.Error
	}
	if j.ResultRef != nil {
		view["result_ref"] = j.ResultRef
	}
	return view
}

var jobWatchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from the same origin the API answers on; this
	// is an ambient operational endpoint, not a public-internet surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const jobWatchPollInterval = 500 * time.Millisecond

// watchJob streams job status over a websocket until it reaches a terminal
// state or the client disconnects, so a dashboard doesn't have to poll
// GET /jobs/{id} in a loop.
func (s *Server) watchJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]

	conn, err := jobWatchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(jobWatchPollInterval)
	defer ticker.Stop()

	for {
		job, err := s.st.GetJob(r.Context(), id)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		if err := conn.WriteJSON(jobView(job)); err != nil {
			return
		}
		if job.IsTerminal() {
			return
		}
		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}
