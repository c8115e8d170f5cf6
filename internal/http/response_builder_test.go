package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"capex/internal/breaker"
	"capex/internal/core"
	"capex/internal/ledger"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Body(map[string]int{"committed": 2}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Test") != "1" {
		t.Error("custom header not set")
	}
	var got map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["committed"] != 2 {
		t.Errorf("body = %v", got)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		status  int
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("bad"), http.StatusUnprocessableEntity},
		{"unavailable", ServiceUnavailableError("bad"), http.StatusServiceUnavailable},
		{"internal", InternalServerError("bad"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body.Error != "bad" {
				t.Errorf("error = %q", body.Error)
			}
		})
	}
}

func TestStoreErrorStatus(t *testing.T) {
	batch := &ledger.BatchError{Index: 1, Key: core.NaturalKey{Year: 2025, Month: 9}, Err: errors.New("duplicate")}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rejected batch", fmt.Errorf("commit forecast: %w", batch), http.StatusUnprocessableEntity},
		{"breaker open", fmt.Errorf("commit forecast: %w", breaker.ErrOpen), http.StatusServiceUnavailable},
		{"not configured", ledger.ErrNotConfigured, http.StatusServiceUnavailable},
		{"upstream failure", errors.New("sheets: 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storeErrorStatus(tt.err); got != tt.want {
				t.Errorf("storeErrorStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
