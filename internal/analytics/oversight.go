package analytics

import "capex/internal/core"

// Tally counts ready aggregates out of a total.
type Tally struct {
	Ready int `json:"readyCount"`
	Total int `json:"total"`
}

// FullyReady is true when every counted project is ready. An empty tally is
// trivially ready.
func (t Tally) FullyReady() bool { return t.Ready == t.Total }

func (t *Tally) add(a core.ProjectAggregate) {
	t.Total++
	if a.ForecastReady {
		t.Ready++
	}
}

type ResponsibleRollup struct {
	Responsible string                  `json:"responsible"`
	Tally       Tally                   `json:"tally"`
	FullyReady  bool                    `json:"fullyReady"`
	Projects    []core.ProjectAggregate `json:"projects"`
}

type SegmentRollup struct {
	Segment      string              `json:"segment"`
	Tally        Tally               `json:"tally"`
	FullyReady   bool                `json:"fullyReady"`
	Responsibles []ResponsibleRollup `json:"responsibles"`
}

// Oversight groups aggregates by segment, then by responsible within each
// segment, keeping first-seen order at both levels.
func Oversight(aggs []core.ProjectAggregate) []SegmentRollup {
	segIndex := map[string]int{}
	respIndex := map[[2]string]int{}
	out := []SegmentRollup{}
	for _, a := range aggs {
		si, ok := segIndex[a.Segment]
		if !ok {
			si = len(out)
			segIndex[a.Segment] = si
			out = append(out, SegmentRollup{Segment: a.Segment})
		}
		seg := &out[si]
		seg.Tally.add(a)

		key := [2]string{a.Segment, a.Responsible}
		ri, ok := respIndex[key]
		if !ok {
			ri = len(seg.Responsibles)
			respIndex[key] = ri
			seg.Responsibles = append(seg.Responsibles, ResponsibleRollup{Responsible: a.Responsible})
		}
		resp := &seg.Responsibles[ri]
		resp.Tally.add(a)
		resp.Projects = append(resp.Projects, a)
	}
	for i := range out {
		out[i].FullyReady = out[i].Tally.FullyReady()
		for j := range out[i].Responsibles {
			r := &out[i].Responsibles[j]
			r.FullyReady = r.Tally.FullyReady()
		}
	}
	return out
}

// AggregateFilter narrows the aggregate table. Empty fields match everything.
type AggregateFilter struct {
	Segment  string
	Category string
}

// AggregateLine is an aggregate with its execution percentage.
type AggregateLine struct {
	core.ProjectAggregate
	ExecutionPct float64 `json:"executionPct"`
}

// AggregateTable filters aggs and attaches execution percentages.
func AggregateTable(aggs []core.ProjectAggregate, f AggregateFilter) []AggregateLine {
	out := []AggregateLine{}
	for _, a := range aggs {
		if f.Segment != "" && a.Segment != f.Segment {
			continue
		}
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		out = append(out, AggregateLine{ProjectAggregate: a, ExecutionPct: ExecutionPct(a.RealYTD, a.BudgetYTD)})
	}
	return out
}
