package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"capex/internal/core"
	"capex/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client stores the ledger in one tab of a Google spreadsheet, one row per
// ledger row with the header in row 1. Aggregates are derived in process.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	cal           core.Calendar
	now           func() time.Time
}

// Ensure interface conformance
var (
	_ ledger.Store  = (*Client)(nil)
	_ ledger.Pinger = (*Client)(nil)
)

// Config selects the spreadsheet and the service account credentials.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets-backed ledger. Extra client options are appended after
// the credentials, which lets tests point the client at a local endpoint.
func New(ctx context.Context, cfg Config, cal core.Calendar, opts ...goption.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Ledger"
	}

	var clientOpts []goption.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		clientOpts = append(clientOpts, goption.WithCredentialsJSON(b))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	clientOpts = append(clientOpts, goption.WithScopes(gsheet.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets ledger ready", "spreadsheet_id", cfg.SpreadsheetID, "sheet", cfg.SheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.SheetName,
		cal:           cal,
		now:           time.Now,
	}, nil
}

func (c *Client) tabRange() string {
	return fmt.Sprintf("%s!A:%s", c.sheet, lastColumn)
}

func (c *Client) read(ctx context.Context) ([]sheetRow, int, error) {
	if c.svc == nil {
		return nil, 0, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.tabRange()).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", c.tabRange(), err)
	}
	rows, skipped, err := parseLedger(resp.Values)
	if err != nil {
		return nil, 0, err
	}
	if len(skipped) > 0 {
		slog.WarnContext(ctx, "Skipped malformed ledger rows", "sheet", c.sheet, "lines", skipped)
	}
	return rows, len(resp.Values), nil
}

// FetchLedgerRows returns every valid row of the tab ordered by (year, month).
func (c *Client) FetchLedgerRows(ctx context.Context) ([]core.LedgerRow, error) {
	parsed, _, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.LedgerRow, len(parsed))
	for i, p := range parsed {
		out[i] = p.row
	}
	ledger.SortRows(out)
	return out, nil
}

func (c *Client) FetchAggregates(ctx context.Context) ([]core.ProjectAggregate, error) {
	rows, err := c.FetchLedgerRows(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.DeriveAggregates(rows, c.cal, c.now()), nil
}

// Upsert overwrites the tab rows whose natural key matches and appends the
// rest. Matching rows are rewritten in one batchUpdate call and new rows in one
// append call.
func (c *Client) Upsert(ctx context.Context, rows []core.LedgerRow) error {
	if err := ledger.ValidateBatch(rows); err != nil {
		return err
	}
	rows = ledger.Dedupe(rows)
	if len(rows) == 0 {
		return nil
	}

	existing, height, err := c.read(ctx)
	if err != nil {
		return err
	}
	lines := make(map[core.NaturalKey]int, len(existing))
	for _, e := range existing {
		lines[e.row.Key()] = e.line
	}

	var updates []*gsheet.ValueRange
	var appends [][]interface{}
	if height == 0 {
		appends = append(appends, headerRow())
	}
	for _, r := range rows {
		if line, ok := lines[r.Key()]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:%s%d", c.sheet, line, lastColumn, line),
				Values: [][]interface{}{encodeRow(r)},
			})
			continue
		}
		appends = append(appends, encodeRow(r))
	}

	if len(updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: updates}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("update %d rows in %s: %w", len(updates), c.sheet, err)
		}
	}
	if len(appends) > 0 {
		vr := &gsheet.ValueRange{Values: appends}
		if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.tabRange(), vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
			return fmt.Errorf("append %d rows to %s: %w", len(appends), c.sheet, err)
		}
	}
	slog.InfoContext(ctx, "Upserted ledger rows", "sheet", c.sheet, "updated", len(updates), "appended", len(rows)-len(updates))
	return nil
}

// Ping checks the spreadsheet is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	_, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}
