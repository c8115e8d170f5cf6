package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldRoute      = "route"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldBackend    = "backend"
	FieldSource     = "source"
	FieldCount      = "count"
	FieldRejected   = "rejected"
	FieldProject    = "project"
	FieldMonth      = "month"
	FieldResource   = "resource"
	FieldSession    = "session"
	FieldRole       = "role"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentIngest    = "ingest"
	ComponentForecast  = "forecast"
	ComponentStorage   = "storage"
	ComponentCache     = "cache"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentBreaker   = "breaker"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentAuth      = "auth"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRead       = "read"
	OpUpsert     = "upsert"
	OpValidate   = "validate"
	OpImport     = "import"
	OpCommit     = "commit"
	OpInvalidate = "invalidate"
	OpPublish    = "publish"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text, skipping nil errors.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithLedgerWrite adds the fields of an upsert batch.
func (f LogFields) WithLedgerWrite(source string, rows, rejected int) LogFields {
	f[FieldSource] = source
	f[FieldCount] = rows
	f[FieldRejected] = rejected
	return f
}

func (f LogFields) WithHTTPRequest(method, path, route string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if route != "" {
		f[FieldRoute] = route
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
