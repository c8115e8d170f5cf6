package ingest

import "strings"

// Column is the semantic name of a ledger file column.
type Column string

const (
	ColYear                  Column = "year"
	ColMonth                 Column = "month"
	ColProjectName           Column = "projectName"
	ColResponsible           Column = "responsible"
	ColActualAmountUSD       Column = "actualAmountUsd"
	ColBudgetAmountUSD       Column = "budgetAmountUsd"
	ColSegment               Column = "segment"
	ColCategory              Column = "category"
	ColProjectType           Column = "projectType"
	ColCostCenterDescription Column = "costCenterDescription"
	ColArea                  Column = "area"
	ColOrderNumber           Column = "orderNumber"
	ColIsForecast            Column = "isForecast"
)

// RequiredColumns must all appear in the header, in this reporting order.
var RequiredColumns = []Column{
	ColYear,
	ColMonth,
	ColProjectName,
	ColResponsible,
	ColActualAmountUSD,
	ColBudgetAmountUSD,
	ColSegment,
	ColCategory,
}

// TemplateColumns is the header written to new ledger templates, using the
// column names of the source finance spreadsheet.
var TemplateColumns = []string{
	"ano", "mes", "nombre_proyecto", "responsable_3", "segmento", "categoria",
	"tipo_proyecto", "desc_ceco", "area", "numero_oi", "monto_usd", "bdgt_mes_usd", "is_forecast",
}

// aliases maps lower-cased header names onto columns. Semantic names and the
// finance spreadsheet names are both accepted.
var aliases = map[string]Column{
	"year":                  ColYear,
	"ano":                   ColYear,
	"año":                   ColYear,
	"month":                 ColMonth,
	"mes":                   ColMonth,
	"projectname":           ColProjectName,
	"nombre_proyecto":       ColProjectName,
	"responsible":           ColResponsible,
	"responsable_3":         ColResponsible,
	"actualamountusd":       ColActualAmountUSD,
	"monto_usd":             ColActualAmountUSD,
	"budgetamountusd":       ColBudgetAmountUSD,
	"bdgt_mes_usd":          ColBudgetAmountUSD,
	"segment":               ColSegment,
	"segmento":              ColSegment,
	"category":              ColCategory,
	"categoria":             ColCategory,
	"projecttype":           ColProjectType,
	"tipo_proyecto":         ColProjectType,
	"costcenterdescription": ColCostCenterDescription,
	"desc_ceco":             ColCostCenterDescription,
	"area":                  ColArea,
	"ordernumber":           ColOrderNumber,
	"numero_oi":             ColOrderNumber,
	"isforecast":            ColIsForecast,
	"is_forecast":           ColIsForecast,
}

// LookupColumn resolves a header cell.
func LookupColumn(header string) (Column, bool) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(header))]
	return c, ok
}

// layout maps each known column to its cell position. When a column appears
// twice the later position wins.
type layout map[Column]int

func resolveHeader(headers []string) (layout, []string) {
	l := layout{}
	for i, h := range headers {
		if c, ok := LookupColumn(h); ok {
			l[c] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := l[c]; !ok {
			missing = append(missing, string(c))
		}
	}
	return l, missing
}

// cell returns the trimmed value of column c and whether the line reaches it.
func (l layout) cell(cells []string, c Column) (string, bool) {
	i, ok := l[c]
	if !ok || i >= len(cells) {
		return "", false
	}
	return cells[i], true
}
