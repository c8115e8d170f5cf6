package analytics

import (
	"strings"

	"capex/internal/core"
)

// Status filters projects on their forecast readiness.
type Status string

const (
	StatusAny     Status = ""
	StatusReady   Status = "ready"
	StatusPending Status = "pending"
)

// Project is every ledger row of one project name, with the readiness flag
// taken from the store's aggregates.
type Project struct {
	Name        string           `json:"name"`
	Segment     string           `json:"segment"`
	Category    string           `json:"category"`
	Responsible string           `json:"responsible"`
	Rows        []core.LedgerRow `json:"rows"`
	Ready       bool             `json:"ready"`
}

// GroupProjects groups rows by project name in first-seen order. Segment,
// category and responsible come from the first row of each project.
//
// Readiness attaches by exact name equality with NameOfProject; a name that
// differs in case or spacing leaves the project not ready. When several
// aggregates share a name the last one wins.
func GroupProjects(rows []core.LedgerRow, aggs []core.ProjectAggregate) []Project {
	index := map[string]int{}
	out := []Project{}
	for _, r := range rows {
		i, ok := index[r.ProjectName]
		if !ok {
			i = len(out)
			index[r.ProjectName] = i
			out = append(out, Project{
				Name:        r.ProjectName,
				Segment:     r.Segment,
				Category:    r.Category,
				Responsible: r.Responsible,
			})
		}
		out[i].Rows = append(out[i].Rows, r)
	}
	for _, a := range aggs {
		if i, ok := index[a.NameOfProject]; ok {
			out[i].Ready = a.ForecastReady
		}
	}
	return out
}

// Summary is the project's YTD figures through reportingMonth.
func (p Project) Summary(reportingMonth int) KPI {
	return Summarize(p.Rows, reportingMonth)
}

// RowFor returns the first row of the project in month.
func (p Project) RowFor(month int) (core.LedgerRow, bool) {
	for _, r := range p.Rows {
		if r.Month == month {
			return r, true
		}
	}
	return core.LedgerRow{}, false
}

// ProjectFilter narrows a project listing. Empty fields match everything.
type ProjectFilter struct {
	Search   string
	Segment  string
	Category string
	Status   Status
}

func (f ProjectFilter) match(p Project) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	if f.Segment != "" && p.Segment != f.Segment {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	switch f.Status {
	case StatusReady:
		return p.Ready
	case StatusPending:
		return !p.Ready
	}
	return true
}

// FilterProjects keeps the projects matching f, preserving order.
func FilterProjects(projects []Project, f ProjectFilter) []Project {
	out := []Project{}
	for _, p := range projects {
		if f.match(p) {
			out = append(out, p)
		}
	}
	return out
}

// ProjectSegments lists distinct non-empty project segments.
func ProjectSegments(projects []Project) []string {
	return distinct(projects, func(p Project) string { return p.Segment })
}

// ProjectCategories lists distinct non-empty project categories.
func ProjectCategories(projects []Project) []string {
	return distinct(projects, func(p Project) string { return p.Category })
}

// RowSegments lists distinct non-empty ledger segments.
func RowSegments(rows []core.LedgerRow) []string {
	return distinct(rows, func(r core.LedgerRow) string { return r.Segment })
}

// RowCategories lists distinct non-empty ledger categories.
func RowCategories(rows []core.LedgerRow) []string {
	return distinct(rows, func(r core.LedgerRow) string { return r.Category })
}

func distinct[T any](items []T, key func(T) string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, it := range items {
		k := key(it)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
