// Package ingest turns raw ledger files into validated ledger rows.
//
// Input is comma-delimited text: a header line followed by one record per
// line. Cells are split on every comma; quoting and escaped commas are not
// supported.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"capex/internal/core"

	"github.com/google/uuid"
)

// Result is the outcome of validating one file. Rows and Errors are never nil.
type Result struct {
	Rows           []core.LedgerRow `json:"rows"`
	Errors         []string         `json:"errors"`
	MissingColumns []string         `json:"missingColumns,omitempty"`
}

// SchemaRejected reports a batch-level failure: no row was even considered.
func (r Result) SchemaRejected() bool {
	return len(r.MissingColumns) > 0
}

// Validator parses ledger text. The zero value uses the wall clock and random
// uuids.
type Validator struct {
	Now   func() time.Time
	NewID func() string
}

// Validate parses raw with the default Validator.
func Validate(raw string) Result {
	return Validator{}.Validate(raw)
}

// Validate parses raw into ledger rows. A missing required column rejects the
// whole batch with a single error; otherwise each bad line is reported as
// "Line N: reason" (N counts the header as line 1) and skipped.
func (v Validator) Validate(raw string) Result {
	now := v.now()
	lines := splitLines(strings.TrimSpace(raw))

	l, missing := resolveHeader(splitCells(lines[0]))
	if len(missing) > 0 {
		return Result{
			Rows:           []core.LedgerRow{},
			Errors:         []string{"Missing required columns: " + strings.Join(missing, ", ")},
			MissingColumns: missing,
		}
	}

	res := Result{
		Rows:   make([]core.LedgerRow, 0, len(lines)-1),
		Errors: []string{},
	}
	for i, line := range lines[1:] {
		row, err := v.parseLine(l, splitCells(line), now)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: %v", i+2, err))
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func (v Validator) parseLine(l layout, cells []string, now time.Time) (core.LedgerRow, error) {
	get := func(c Column) string {
		s, _ := l.cell(cells, c)
		return s
	}

	year, ok := core.ParseWhole(get(ColYear))
	if !ok {
		return core.LedgerRow{}, fmt.Errorf("%w %q", core.ErrInvalidYear, get(ColYear))
	}
	month, ok := core.ParseWhole(get(ColMonth))
	if !ok || month > 12 {
		return core.LedgerRow{}, fmt.Errorf("%w %q", core.ErrInvalidMonth, get(ColMonth))
	}
	project := get(ColProjectName)
	if project == "" {
		return core.LedgerRow{}, core.ErrEmptyProject
	}
	actual, err := core.ParseAmount(get(ColActualAmountUSD))
	if err != nil {
		return core.LedgerRow{}, fmt.Errorf("%s: %w", ColActualAmountUSD, err)
	}
	budget, err := core.ParseAmount(get(ColBudgetAmountUSD))
	if err != nil {
		return core.LedgerRow{}, fmt.Errorf("%s: %w", ColBudgetAmountUSD, err)
	}

	segment := get(ColSegment)
	category := get(ColCategory)
	costCenter := get(ColCostCenterDescription)
	if costCenter == "" {
		costCenter = segment
	}
	projectType := get(ColProjectType)
	if projectType == "" {
		projectType = category
	}

	updated := now
	return core.LedgerRow{
		ID:                    v.newID(),
		Year:                  year,
		Month:                 month,
		ProjectName:           project,
		Responsible:           get(ColResponsible),
		Segment:               segment,
		Category:              category,
		ProjectType:           projectType,
		CostCenterDescription: &costCenter,
		Area:                  core.StringPtr(get(ColArea)),
		OrderNumber:           core.StringPtr(get(ColOrderNumber)),
		ActualAmountUSD:       actual,
		BudgetAmountUSD:       budget,
		IsForecast:            strings.EqualFold(get(ColIsForecast), "true"),
		UpdatedAt:             &updated,
	}, nil
}

func (v Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now().UTC()
}

func (v Validator) newID() string {
	if v.NewID != nil {
		return v.NewID()
	}
	return uuid.NewString()
}

// splitLines accepts both \n and \r\n line endings.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

func splitCells(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
