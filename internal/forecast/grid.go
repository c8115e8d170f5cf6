package forecast

import (
	"capex/internal/core"
)

// Cell is one month of a project's forecast grid.
type Cell struct {
	Month    int      `json:"month"`
	Label    string   `json:"label"`
	Value    float64  `json:"value"`
	Draft    *float64 `json:"draft,omitempty"`
	Editable bool     `json:"editable"`
}

// Grid lays out the twelve months of project. Value is the actual amount of
// the first ledger row of that month; Draft is the pending session value.
// Only forward months are editable.
func Grid(project string, rows []core.LedgerRow, drafts *Drafts, cal core.Calendar) []Cell {
	cells := make([]Cell, 12)
	seen := [12]bool{}
	for i := range cells {
		m := i + 1
		cells[i] = Cell{Month: m, Label: core.MonthLabel(m), Editable: cal.IsForward(m)}
	}
	for _, r := range rows {
		if r.ProjectName != project || r.Month < 1 || r.Month > 12 || seen[r.Month-1] {
			continue
		}
		seen[r.Month-1] = true
		cells[r.Month-1].Value = r.ActualAmountUSD
	}
	if drafts != nil {
		for i := range cells {
			if v, ok := drafts.Value(project, cells[i].Month); ok {
				cells[i].Draft = &v
			}
		}
	}
	return cells
}
