package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/casebuilder"
	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/mining"
	"github.com/processlens/engine/internal/store"
)

// syncEventThreshold is the event-count cutoff above which a mining request
// is answered with a job id instead of blocking the request, per spec.
const syncEventThreshold = 10000

type miningRequest struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Bucket        string    `json:"bucket"`
	MinSupport    float64   `json:"min_support"`
	MinLength     int       `json:"min_length"`
	MaxLength     int       `json:"max_length"`
	MaxGapSeconds float64   `json:"max_gap_seconds"`
	Key           string    `json:"key"`
	WorkflowID    string    `json:"workflow_id,omitempty"`
}

func (req miningRequest) mineOptions() mining.Options {
	opts := mining.DefaultOptions()
	if req.MinSupport > 0 {
		opts.MinSupport = req.MinSupport
	}
	if req.MinLength > 0 {
		opts.MinLength = req.MinLength
	}
	if req.MaxLength > 0 {
		opts.MaxLength = req.MaxLength
	}
	return opts
}

func (req miningRequest) caseBuilderOptions() casebuilder.Options {
	opts := casebuilder.DefaultOptions()
	if req.MaxGapSeconds > 0 {
		opts.MaxGap = time.Duration(req.MaxGapSeconds * float64(time.Second))
	}
	return opts
}

// buildSequences reads events for the window, builds cases the same way the
// orchestrator does, and persists their steps inside one transaction,
// returning the mining.CaseSequence view every mining operation consumes.
func (s *Server) buildSequences(ctx context.Context, bucket string, r store.TimeRange, cbOpts casebuilder.Options) ([]domain.Event, []mining.CaseSequence, error) {
	events, err := s.st.ReadEvents(ctx, bucket, r)
	if err != nil {
		return nil, nil, err
	}

	objectsByEvent := make(map[domain.EventKey][]string, len(events))
	for _, ev := range events {
		objs, err := s.st.ObjectsForEvent(ctx, bucket, ev.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(objs) == 0 {
			continue
		}
		ids := make([]string, len(objs))
		for i, o := range objs {
			ids[i] = o.ID
		}
		objectsByEvent[ev.Key()] = ids
	}

	cases := casebuilder.Build(events, objectsByEvent, cbOpts)

	var sequences []mining.CaseSequence
	err = s.st.WithTx(ctx, func(txCtx context.Context) error {
		for _, c := range cases {
			steps := casebuilder.BuildSteps(c, objectsByEvent)
			seq := mining.CaseSequence{CaseID: c.ID}
			for _, step := range steps {
				created, err := s.st.CreateStep(txCtx, step)
				if err != nil {
					return err
				}
				seq.StepIDs = append(seq.StepIDs, created.ID)
				seq.Labels = append(seq.Labels, created.Name)
				seq.Spans = append(seq.Spans, mining.TimeSpan{Start: created.StartTime, End: created.EndTime})
			}
			sequences = append(sequences, seq)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return events, sequences, nil
}

// runMiningJob dispatches work inline when the window is small enough to
// answer synchronously, or as a background job whose progress is polled via
// GET /jobs/{job_id} otherwise.
func (s *Server) runMiningJob(w http.ResponseWriter, r *http.Request, kind string, req miningRequest, work func(ctx context.Context, sequences []mining.CaseSequence) (any, error)) {
	ctx := r.Context()
	events, sequences, err := s.buildSequences(ctx, req.Bucket, store.TimeRange{Start: req.Start, End: req.End}, req.caseBuilderOptions())
	if err != nil {
		writeError(w, err)
		return
	}

	if len(events) < syncEventThreshold {
		result, err := work(ctx, sequences)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	job, err := s.st.CreateJob(ctx, domain.AnalysisJob{Kind: kind, Status: domain.JobQueued})
	if err != nil {
		writeError(w, err)
		return
	}
	go s.runAsyncMining(job.ID, sequences, work)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) runAsyncMining(jobID string, sequences []mining.CaseSequence, work func(ctx context.Context, sequences []mining.CaseSequence) (any, error)) {
	ctx := context.Background()
	job, err := s.st.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	job.Status = domain.JobRunning
	if _, err := s.st.UpdateJob(ctx, job); err != nil {
		return
	}

	result, err := work(ctx, sequences)

	job, getErr := s.st.GetJob(ctx, jobID)
	if getErr != nil {
		return
	}
	if err != nil {
		job.Status = domain.JobFailed
		job.Error = err.Error()
	} else {
		job.Status = domain.JobDone
		job.Progress = 1.0
		if m, ok := result.(map[string]any); ok {
			job.ResultRef = m
		} else {
			job.ResultRef = map[string]any{"result": result}
		}
	}
	_, _ = s.st.UpdateJob(ctx, job)
}

func (s *Server) miningPatterns(w http.ResponseWriter, r *http.Request) {
	var req miningRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	mineOpts := req.mineOptions()
	s.runMiningJob(w, r, "mining_patterns", req, func(ctx context.Context, sequences []mining.CaseSequence) (any, error) {
		return map[string]any{"patterns": mining.Mine(sequences, mineOpts)}, nil
	})
}

// miningGroupEvents returns the raw case sequences without running the
// pattern miner over them — the sessionisation/object-coherence grouping
// step on its own, useful for inspecting how a window was cased before
// mining it.
func (s *Server) miningGroupEvents(w http.ResponseWriter, r *http.Request) {
	var req miningRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	s.runMiningJob(w, r, "mining_group_events", req, func(ctx context.Context, sequences []mining.CaseSequence) (any, error) {
		return map[string]any{"cases": sequences}, nil
	})
}

func (s *Server) miningDiscoverWorkflows(w http.ResponseWriter, r *http.Request) {
	var req miningRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	mineOpts := req.mineOptions()
	registry := mining.New(s.st)
	s.runMiningJob(w, r, "mining_discover_workflows", req, func(ctx context.Context, sequences []mining.CaseSequence) (any, error) {
		result, err := registry.DiscoverWorkflows(ctx, sequences, mineOpts, mining.DefaultSimilarityThreshold)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

// miningMatchWorkflow matches the given window's cases against workflow_id
// if supplied, else every active workflow, persisting occurrences either way.
func (s *Server) miningMatchWorkflow(w http.ResponseWriter, r *http.Request) {
	var req miningRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	registry := mining.New(s.st)
	matchOpts := mining.DefaultMatchOptions()
	s.runMiningJob(w, r, "mining_match_workflow", req, func(ctx context.Context, sequences []mining.CaseSequence) (any, error) {
		if req.WorkflowID == "" {
			count, err := registry.MatchActiveWorkflows(ctx, sequences, matchOpts)
			if err != nil {
				return nil, err
			}
			return map[string]any{"occurrences_found": count}, nil
		}

		wf, err := s.st.GetWorkflow(ctx, req.WorkflowID)
		if err != nil {
			return nil, err
		}
		if wf.State != domain.WorkflowActive {
			return nil, apperr.New(apperr.CodePreconditionFailed, "miningMatchWorkflow", "workflow is not active")
		}
		var occurrences []domain.Occurrence
		for _, seq := range sequences {
			for _, occ := range mining.Match(seq, wf, matchOpts) {
				created, err := s.st.CreateOccurrence(ctx, occ)
				if err != nil {
					return nil, err
				}
				occurrences = append(occurrences, created)
			}
		}
		return map[string]any{"occurrences": occurrences}, nil
	})
}
