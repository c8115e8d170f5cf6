package http

import (
	"bytes"
	"errors"
	"net/http"

	"capex/internal/ingest"
	"capex/internal/log"
)

const templateFilename = "capex_ledger_template.xlsx"

// handleValidateLedger reports what an import would accept without writing.
func (s *Server) handleValidateLedger(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	res := s.deps.Import.Validate(raw)
	status := http.StatusOK
	if res.SchemaRejected() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// handleImportLedger validates and upserts the accepted rows. Rejected lines
// are reported alongside the persisted count.
func (s *Server) handleImportLedger(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Import.Import(r.Context(), raw)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger import failed",
			log.FieldOperation, log.OpImport,
			log.FieldError, err)
		writeJSON(w, storeErrorStatus(err), map[string]any{
			"error":  "ledger store rejected the import: " + err.Error(),
			"errors": res.Errors,
		})
		return
	}
	status := http.StatusOK
	if res.SchemaRejected() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleLedgerTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := ingest.WriteTemplate(&buf); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template generation failed", log.FieldError, err)
		InternalServerError("could not build template").Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+templateFilename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw, err := ReadLedgerUpload(w, r)
	if err == nil {
		return raw, true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, "ledger file too large").Write(w)
	case errors.Is(err, errUnreadableWorkbook):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		BadRequestError(err.Error()).Write(w)
	}
	return "", false
}
