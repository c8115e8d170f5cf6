package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"capex/internal/analytics"
	"capex/internal/ingest"
)

var (
	errEmptyUpload        = errors.New("empty ledger file")
	errUnreadableWorkbook = errors.New("unreadable workbook")
)

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// DraftInput is one draft edit as sent by the grid.
type DraftInput struct {
	Project string
	Month   int
	Value   string
}

// ParseDraftInput reads {project, month, value} from a JSON or form body.
// The value stays raw so the draft store decides what parses.
func ParseDraftInput(r *http.Request) (DraftInput, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return DraftInput{}, fmt.Errorf("invalid request body: %w", err)
	}

	in := DraftInput{
		Project: p.Get("project"),
		Value:   p.Get("value"),
	}
	if in.Project == "" {
		return DraftInput{}, errors.New("project is required")
	}
	month, err := strconv.Atoi(p.Get("month"))
	if err != nil {
		return DraftInput{}, fmt.Errorf("invalid month %q", p.Get("month"))
	}
	in.Month = month
	return in, nil
}

// ParseAggregateFilter reads segment and category from the query string.
func ParseAggregateFilter(query url.Values) analytics.AggregateFilter {
	return analytics.AggregateFilter{
		Segment:  sanitizeInput(query.Get("segment")),
		Category: sanitizeInput(query.Get("category")),
	}
}

// ParseProjectFilter reads q, segment, category and status. An unknown
// status is an error.
func ParseProjectFilter(query url.Values) (analytics.ProjectFilter, error) {
	f := analytics.ProjectFilter{
		Search:   sanitizeInput(query.Get("q")),
		Segment:  sanitizeInput(query.Get("segment")),
		Category: sanitizeInput(query.Get("category")),
	}
	switch status := analytics.Status(strings.ToLower(sanitizeInput(query.Get("status")))); status {
	case analytics.StatusAny, analytics.StatusReady, analytics.StatusPending:
		f.Status = status
	default:
		return f, fmt.Errorf("invalid status %q: must be ready or pending", status)
	}
	return f, nil
}

// ReadLedgerUpload returns the uploaded ledger as text. The file comes either
// as the "file" part of a multipart form or as the raw body; .xlsx content is
// converted from its first sheet.
func ReadLedgerUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		b   []byte
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", fmt.Errorf("invalid upload: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()
		b, err = io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
	} else {
		b, err = io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return "", errEmptyUpload
	}
	if ingest.IsWorkbook(b) {
		raw, err := ingest.FromWorkbook(bytes.NewReader(b))
		if err != nil {
			return "", fmt.Errorf("%w: %v", errUnreadableWorkbook, err)
		}
		return raw, nil
	}
	return string(b), nil
}
