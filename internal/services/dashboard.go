package services

import (
	"context"
	"time"

	"capex/internal/analytics"
	"capex/internal/core"
)

// DashboardView is the executive dashboard: KPIs and charts over every row,
// and the aggregate table narrowed by the filter.
type DashboardView struct {
	ReportingMonth int                       `json:"reportingMonth"`
	KPI            analytics.KPI             `json:"kpi"`
	Series         []analytics.MonthPoint    `json:"series"`
	BySegment      []analytics.GroupTotal    `json:"bySegment"`
	ByCategory     []analytics.GroupTotal    `json:"byCategory"`
	TopSpenders    []core.LedgerRow          `json:"topSpenders"`
	Aggregates     []analytics.AggregateLine `json:"aggregates"`
	Segments       []string                  `json:"segments"`
	Categories     []string                  `json:"categories"`
	Degraded       bool                      `json:"degraded"`
	Problems       []string                  `json:"problems,omitempty"`
	LoadedAt       time.Time                 `json:"loadedAt"`
}

// ProjectLine is one project of the listing with its YTD figures.
type ProjectLine struct {
	analytics.Project
	YTD analytics.KPI `json:"ytd"`
}

type ProjectsView struct {
	ReportingMonth int           `json:"reportingMonth"`
	Projects       []ProjectLine `json:"projects"`
	Segments       []string      `json:"segments"`
	Categories     []string      `json:"categories"`
	Degraded       bool          `json:"degraded"`
	Problems       []string      `json:"problems,omitempty"`
}

type OversightView struct {
	Segments []analytics.SegmentRollup `json:"segments"`
	Overall  analytics.Tally           `json:"overall"`
	Degraded bool                      `json:"degraded"`
	Problems []string                  `json:"problems,omitempty"`
}

// DashboardService builds the read views from one snapshot per request.
type DashboardService struct {
	loader *SnapshotLoader
	cal    core.Calendar
}

func NewDashboardService(loader *SnapshotLoader, cal core.Calendar) *DashboardService {
	return &DashboardService{loader: loader, cal: cal}
}

func (s *DashboardService) Snapshot(ctx context.Context) Snapshot {
	return s.loader.Load(ctx)
}

func (s *DashboardService) Dashboard(ctx context.Context, f analytics.AggregateFilter) DashboardView {
	return BuildDashboard(s.loader.Load(ctx), s.cal, f)
}

// BuildDashboard derives the dashboard from snap.
func BuildDashboard(snap Snapshot, cal core.Calendar, f analytics.AggregateFilter) DashboardView {
	month := cal.ReportingMonth
	return DashboardView{
		ReportingMonth: month,
		KPI:            analytics.Summarize(snap.Rows, month),
		Series:         analytics.MonthlySeries(snap.Rows),
		BySegment:      analytics.GroupBy(snap.Rows, analytics.BySegment, month),
		ByCategory:     analytics.GroupBy(snap.Rows, analytics.ByCategory, month),
		TopSpenders:    analytics.TopSpenders(snap.Rows, month, analytics.DefaultTopN),
		Aggregates:     analytics.AggregateTable(snap.Aggregates, f),
		Segments:       analytics.RowSegments(snap.Rows),
		Categories:     analytics.RowCategories(snap.Rows),
		Degraded:       snap.Degraded(),
		Problems:       snap.Problems(),
		LoadedAt:       snap.LoadedAt,
	}
}

func (s *DashboardService) Projects(ctx context.Context, f analytics.ProjectFilter) ProjectsView {
	snap := s.loader.Load(ctx)
	all := analytics.GroupProjects(snap.Rows, snap.Aggregates)
	filtered := analytics.FilterProjects(all, f)

	lines := make([]ProjectLine, len(filtered))
	for i, p := range filtered {
		lines[i] = ProjectLine{Project: p, YTD: p.Summary(s.cal.ReportingMonth)}
	}
	return ProjectsView{
		ReportingMonth: s.cal.ReportingMonth,
		Projects:       lines,
		Segments:       analytics.ProjectSegments(all),
		Categories:     analytics.ProjectCategories(all),
		Degraded:       snap.Degraded(),
		Problems:       snap.Problems(),
	}
}

func (s *DashboardService) Oversight(ctx context.Context) OversightView {
	snap := s.loader.Load(ctx)
	segments := analytics.Oversight(snap.Aggregates)
	var overall analytics.Tally
	for _, seg := range segments {
		overall.Ready += seg.Tally.Ready
		overall.Total += seg.Tally.Total
	}
	return OversightView{
		Segments: segments,
		Overall:  overall,
		Degraded: snap.Degraded(),
		Problems: snap.Problems(),
	}
}
