package google

import (
	"fmt"
	"strings"
	"time"

	"capex/internal/core"
)

// sheetColumns is the column order of the ledger tab, A through O.
var sheetColumns = []string{
	"id", "year", "month", "projectName", "responsible", "segment", "category",
	"projectType", "costCenterDescription", "area", "orderNumber",
	"actualAmountUsd", "budgetAmountUsd", "isForecast", "updatedAt",
}

var requiredHeaders = []string{"year", "month", "projectName", "responsible", "actualAmountUsd", "budgetAmountUsd", "segment", "category"}

const lastColumn = "O"

// sheetRow is a parsed ledger row with its 1-based position in the tab.
type sheetRow struct {
	line int
	row  core.LedgerRow
}

// parseLedger converts a values matrix (as returned by the Sheets API) into
// ledger rows. Rows that do not form a valid ledger row are returned in skipped
// with their line number; a header without the required columns is an error.
func parseLedger(values [][]interface{}) (rows []sheetRow, skipped []int, err error) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	headers := toStrings(values[0])
	var missing []string
	for _, h := range requiredHeaders {
		if indexOf(headers, h) == -1 {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("unexpected ledger header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}
	col := make(map[string]int, len(sheetColumns))
	for _, name := range sheetColumns {
		col[name] = indexOf(headers, name)
	}

	for i := 1; i < len(values); i++ {
		cells := toStrings(values[i])
		get := func(name string) string { return safeGet(cells, col[name]) }
		if strings.Join(cells, "") == "" {
			continue
		}
		r, ok := decodeRow(get)
		if !ok {
			skipped = append(skipped, i+1)
			continue
		}
		rows = append(rows, sheetRow{line: i + 1, row: r})
	}
	return rows, skipped, nil
}

func decodeRow(get func(string) string) (core.LedgerRow, bool) {
	year, ok := core.ParseWhole(get("year"))
	if !ok {
		return core.LedgerRow{}, false
	}
	month, ok := core.ParseWhole(get("month"))
	if !ok {
		return core.LedgerRow{}, false
	}
	actual, err := core.ParseAmount(get("actualAmountUsd"))
	if err != nil {
		return core.LedgerRow{}, false
	}
	budget, err := core.ParseAmount(get("budgetAmountUsd"))
	if err != nil {
		return core.LedgerRow{}, false
	}
	r := core.LedgerRow{
		ID:                    get("id"),
		Year:                  year,
		Month:                 month,
		ProjectName:           get("projectName"),
		Responsible:           get("responsible"),
		Segment:               get("segment"),
		Category:              get("category"),
		ProjectType:           get("projectType"),
		CostCenterDescription: core.StringPtr(get("costCenterDescription")),
		Area:                  core.StringPtr(get("area")),
		OrderNumber:           core.StringPtr(get("orderNumber")),
		ActualAmountUSD:       actual,
		BudgetAmountUSD:       budget,
		IsForecast:            strings.EqualFold(get("isForecast"), "true"),
	}
	if ts := get("updatedAt"); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return core.LedgerRow{}, false
		}
		r.UpdatedAt = &t
	}
	if r.Validate() != nil {
		return core.LedgerRow{}, false
	}
	return r, true
}

// encodeRow renders a row in sheetColumns order.
func encodeRow(r core.LedgerRow) []interface{} {
	updated := ""
	if r.UpdatedAt != nil {
		updated = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		r.ID,
		r.Year,
		r.Month,
		r.ProjectName,
		r.Responsible,
		r.Segment,
		r.Category,
		r.ProjectType,
		core.Deref(r.CostCenterDescription),
		core.Deref(r.Area),
		core.Deref(r.OrderNumber),
		r.ActualAmountUSD,
		r.BudgetAmountUSD,
		r.IsForecast,
		updated,
	}
}

func headerRow() []interface{} {
	out := make([]interface{}, len(sheetColumns))
	for i, c := range sheetColumns {
		out[i] = c
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(xs []string, want string) int {
	for i, x := range xs {
		if strings.EqualFold(x, want) {
			return i
		}
	}
	return -1
}

func safeGet(xs []string, i int) string {
	if i < 0 || i >= len(xs) {
		return ""
	}
	return xs[i]
}
