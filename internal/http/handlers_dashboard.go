package http

import (
	"context"
	"net/http"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	view := s.deps.Dashboard.Dashboard(ctx, ParseAggregateFilter(r.URL.Query()))
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseProjectFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.deps.Dashboard.Projects(ctx, filter))
}

func (s *Server) handleOversight(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.deps.Dashboard.Oversight(ctx))
}
