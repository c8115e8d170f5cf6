package http

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"slices"

	"capex/internal/core"
	"capex/internal/forecast"
	"capex/internal/log"
)

// DraftEntry is one pending draft of the caller's session.
type DraftEntry struct {
	Project string  `json:"project"`
	Month   int     `json:"month"`
	Value   float64 `json:"value"`
}

type gridResponse struct {
	Project  string          `json:"project"`
	Cells    []forecast.Cell `json:"cells"`
	Degraded bool            `json:"degraded"`
	Problems []string        `json:"problems,omitempty"`
}

func (s *Server) handleForecastGrid(w http.ResponseWriter, r *http.Request) {
	project := sanitizeInput(r.URL.Query().Get("project"))
	if project == "" {
		BadRequestError("project is required").Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	snap := s.deps.Dashboard.Snapshot(ctx)
	drafts, _ := s.drafts(r)
	writeJSON(w, http.StatusOK, gridResponse{
		Project:  project,
		Cells:    forecast.Grid(project, snap.Rows, drafts, s.deps.Calendar),
		Degraded: snap.Degraded(),
		Problems: snap.Problems(),
	})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, _ := s.drafts(r)
	writeJSON(w, http.StatusOK, draftEntries(drafts))
}

// handleSetDraft records one edit. Only forward months accept drafts.
func (s *Server) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	in, err := ParseDraftInput(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !s.deps.Calendar.IsForward(in.Month) {
		UnprocessableEntityError("month is not open for forecasting").Write(w)
		return
	}

	drafts, p := s.drafts(r)
	if err := drafts.SetDraft(in.Project, in.Month, in.Value); err != nil {
		if errors.Is(err, forecast.ErrInvalidDraft) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		InternalServerError(err.Error()).Write(w)
		return
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Draft set",
		log.FieldSession, p.Subject,
		log.FieldProject, in.Project,
		log.FieldMonth, in.Month)
	writeJSON(w, http.StatusOK, draftEntries(drafts))
}

// handleCommit writes the session drafts against a fresh ledger read. A failed
// ledger read answers 503 and keeps the drafts.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	snap := s.deps.Dashboard.Snapshot(ctx)
	if snap.LedgerErr != nil {
		ServiceUnavailableError("ledger unavailable, drafts kept: " + snap.LedgerErr.Error()).Write(w)
		return
	}

	drafts, p := s.drafts(r)
	res, err := s.deps.Forecast.Commit(ctx, snap.Rows, drafts)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Forecast commit failed",
			log.FieldOperation, log.OpCommit,
			log.FieldSession, p.Subject,
			log.FieldError, err)
		ErrorResponse(storeErrorStatus(err), "commit failed, drafts kept: "+err.Error()).Write(w)
		return
	}
	if res.Rows == nil {
		res.Rows = []core.LedgerRow{}
	}
	writeJSON(w, http.StatusOK, res)
}

func draftEntries(d *forecast.Drafts) []DraftEntry {
	snap := d.Snapshot()
	out := make([]DraftEntry, 0, len(snap))
	for k, v := range snap {
		out = append(out, DraftEntry{Project: k.Project, Month: k.Month, Value: v})
	}
	slices.SortFunc(out, func(a, b DraftEntry) int {
		if c := cmp.Compare(a.Project, b.Project); c != 0 {
			return c
		}
		return cmp.Compare(a.Month, b.Month)
	})
	return out
}
