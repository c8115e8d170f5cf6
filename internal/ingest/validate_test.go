package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"capex/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const header = "year,month,projectName,responsible,actualAmountUsd,budgetAmountUsd,segment,category"

func fixedValidator() Validator {
	n := 0
	at := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	return Validator{
		Now:   func() time.Time { return at },
		NewID: func() string { n++; return fmt.Sprintf("id-%d", n) },
	}
}

func TestValidateWellFormed(t *testing.T) {
	raw := header + "\r\n" +
		"2025,1,A,Ana,100,90,Mining,Sustaining\n" +
		"2025,9,B,Luis,50,60,Plant,Growth\r\n"

	res := fixedValidator().Validate(raw)

	require.Empty(t, res.Errors)
	require.Len(t, res.Rows, 2)
	a := res.Rows[0]
	assert.Equal(t, "id-1", a.ID)
	assert.Equal(t, core.NaturalKey{Year: 2025, Month: 1, ProjectName: "A", Responsible: "Ana"}, a.Key())
	assert.Equal(t, 100.0, a.ActualAmountUSD)
	assert.Equal(t, 90.0, a.BudgetAmountUSD)
	assert.False(t, a.IsForecast)
	require.NotNil(t, a.UpdatedAt)
	assert.Equal(t, 2025, a.UpdatedAt.Year())
	assert.Equal(t, "Growth", res.Rows[1].Category)
	assert.Equal(t, "id-2", res.Rows[1].ID)
}

func TestValidateDefaults(t *testing.T) {
	raw := header + ",isForecast\n" +
		"2025,10,A,Ana,,,Mining,Sustaining,true\n" +
		"2025,11,A,Ana,5,,Mining,Sustaining,TRUE\n" +
		"2025,12,A,Ana,5,,Mining,Sustaining,yes"

	res := fixedValidator().Validate(raw)
	require.Empty(t, res.Errors)
	require.Len(t, res.Rows, 3)

	r := res.Rows[0]
	assert.Equal(t, 0.0, r.ActualAmountUSD)
	assert.Equal(t, 0.0, r.BudgetAmountUSD)
	assert.True(t, r.IsForecast)
	assert.Equal(t, "Sustaining", r.ProjectType)
	require.NotNil(t, r.CostCenterDescription)
	assert.Equal(t, "Mining", *r.CostCenterDescription)
	assert.Nil(t, r.Area)
	assert.Nil(t, r.OrderNumber)

	assert.True(t, res.Rows[1].IsForecast)
	assert.False(t, res.Rows[2].IsForecast)
}

func TestValidateSourceAliases(t *testing.T) {
	raw := "ano, mes ,nombre_proyecto,responsable_3,monto_usd,bdgt_mes_usd,segmento,categoria,tipo_proyecto,desc_ceco,area,numero_oi\n" +
		"2025,3,Conveyor,Ana,10.5,12,Mining,Sustaining,Capex,CC-1,North,OI-9"

	res := Validate(raw)
	require.Empty(t, res.Errors)
	require.Len(t, res.Rows, 1)
	r := res.Rows[0]
	assert.Equal(t, "Capex", r.ProjectType)
	assert.Equal(t, "CC-1", core.Deref(r.CostCenterDescription))
	assert.Equal(t, "North", core.Deref(r.Area))
	assert.Equal(t, "OI-9", core.Deref(r.OrderNumber))
	assert.Equal(t, 10.5, r.ActualAmountUSD)
	assert.NotEmpty(t, r.ID)
}

func TestValidateMissingColumns(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "missing category",
			raw:  "year,month,projectName,responsible,actualAmountUsd,budgetAmountUsd,segment\n2025,1,A,Ana,1,1,Mining",
			want: "Missing required columns: category",
		},
		{
			name: "missing several",
			raw:  "year,projectName,segment\n2025,A,Mining",
			want: "Missing required columns: month, responsible, actualAmountUsd, budgetAmountUsd, category",
		},
		{
			name: "empty input",
			raw:  "   \n",
			want: "Missing required columns: year, month, projectName, responsible, actualAmountUsd, budgetAmountUsd, segment, category",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(tc.raw)
			assert.Empty(t, res.Rows)
			assert.NotNil(t, res.Rows)
			assert.Equal(t, []string{tc.want}, res.Errors)
			assert.True(t, res.SchemaRejected())
		})
	}
}

// Besides non-positive years and months and empty project names, rows with a
// month above 12 or an amount cell that is not a finite number are rejected,
// so every accepted row satisfies LedgerRow.Validate.
func TestValidateRowErrorsAreIsolated(t *testing.T) {
	raw := strings.Join([]string{
		header,
		"2025,1,A,Ana,1,1,Mining,Sustaining",
		"abc,1,B,Ana,1,1,Mining,Sustaining",
		"2025,x,C,Ana,1,1,Mining,Sustaining",
		"2025,2,,Ana,1,1,Mining,Sustaining",
		"2025,13,D,Ana,1,1,Mining,Sustaining",
		"2025,0,E,Ana,1,1,Mining,Sustaining",
		"2025,3,F,Ana,1;5,1,Mining,Sustaining",
		"",
		"2025,4,G,Ana,1,1,Mining,Sustaining",
	}, "\n")

	res := fixedValidator().Validate(raw)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "A", res.Rows[0].ProjectName)
	assert.Equal(t, "G", res.Rows[1].ProjectName)
	require.Len(t, res.Errors, 7)
	for i, want := range []string{"Line 3:", "Line 4:", "Line 5:", "Line 6:", "Line 7:", "Line 8:", "Line 9:"} {
		assert.True(t, strings.HasPrefix(res.Errors[i], want), "error %d = %q", i, res.Errors[i])
	}
	assert.Contains(t, res.Errors[0], "invalid year")
	assert.Contains(t, res.Errors[1], "invalid month")
	assert.Contains(t, res.Errors[2], "empty project name")
	assert.Contains(t, res.Errors[5], "actualAmountUsd")
	assert.False(t, res.SchemaRejected())
}

func TestValidateRejectsNonFiniteAmounts(t *testing.T) {
	raw := strings.Join([]string{
		header,
		"2025,1,A,Ana,1e400,0,Mining,Sustaining",
		"2025,1,B,Ana,0,-1e400,Mining,Sustaining",
		"2025,1,C,Ana,NaN,0,Mining,Sustaining",
		"2025,1,D,Ana,Inf,0,Mining,Sustaining",
		"2025,1,E,Ana,1e300,0,Mining,Sustaining",
	}, "\n")

	res := fixedValidator().Validate(raw)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "E", res.Rows[0].ProjectName)
	require.Len(t, res.Errors, 4)
	for _, e := range res.Errors {
		assert.Contains(t, e, "invalid amount")
	}
	for _, row := range res.Rows {
		require.NoError(t, row.Validate())
	}
}

func TestValidateEmbeddedCommaShiftsCells(t *testing.T) {
	// Quoted cells are not supported: the comma splits the project name.
	raw := header + "\n2025,1,\"Plant, North\",Ana,1,1,Mining,Sustaining"
	res := Validate(raw)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, `"Plant`, res.Rows[0].ProjectName)
	assert.Equal(t, `North"`, res.Rows[0].Responsible)
}

func TestValidateShortLine(t *testing.T) {
	res := Validate(header + "\n2025,5,A")
	require.Empty(t, res.Errors)
	require.Len(t, res.Rows, 1)
	r := res.Rows[0]
	assert.Equal(t, "", r.Responsible)
	assert.Equal(t, 0.0, r.ActualAmountUSD)
	assert.Equal(t, "", r.Segment)
}

func TestFromWorkbookRoundTrip(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"ano", "mes", "nombre_proyecto", "responsable_3", "monto_usd", "bdgt_mes_usd", "segmento", "categoria", "is_forecast"},
		{2025, 9, "Conveyor", "Ana", 1234.5, 1000, "Mining", "Sustaining", true},
		{},
		{2025, 10, "Conveyor", "Ana", 10, 0, "Mining", "Sustaining", false},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.True(t, IsWorkbook(buf.Bytes()))

	text, err := FromWorkbook(&buf)
	require.NoError(t, err)

	res := fixedValidator().Validate(text)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 1234.5, res.Rows[0].ActualAmountUSD)
	assert.True(t, res.Rows[0].IsForecast)
	assert.False(t, res.Rows[1].IsForecast)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Line 3:"))
}

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))

	text, err := FromWorkbook(&buf)
	require.NoError(t, err)
	res := Validate(text)
	assert.False(t, res.SchemaRejected())
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Errors)
}
