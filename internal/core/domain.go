package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

const (
	ResourceLedger    Resource = "ledger"
	ResourceAggregate Resource = "aggregate"
)

const (
	SourceImport   ChangeSource = "import"
	SourceForecast ChangeSource = "forecast"
)

type (
	// Role is the identity fact resolved outside this module.
	Role string

	// Resource names a cached read that can be invalidated after a write.
	Resource string

	// ChangeSource tells which write path produced a ledger change.
	ChangeSource string

	// NaturalKey is the upsert conflict key of a ledger row.
	NaturalKey struct {
		Year        int    `json:"year"`
		Month       int    `json:"month"`
		ProjectName string `json:"projectName"`
		Responsible string `json:"responsible"`
	}

	// LedgerRow is one project's financial entry for one year and month.
	LedgerRow struct {
		ID                    string     `json:"id"`
		Year                  int        `json:"year"`
		Month                 int        `json:"month"`
		ProjectName           string     `json:"projectName"`
		Responsible           string     `json:"responsible"`
		Segment               string     `json:"segment"`
		Category              string     `json:"category"`
		ProjectType           string     `json:"projectType"`
		CostCenterDescription *string    `json:"costCenterDescription,omitempty"`
		Area                  *string    `json:"area,omitempty"`
		OrderNumber           *string    `json:"orderNumber,omitempty"`
		ActualAmountUSD       float64    `json:"actualAmountUsd"`
		BudgetAmountUSD       float64    `json:"budgetAmountUsd"`
		IsForecast            bool       `json:"isForecast"`
		UpdatedAt             *time.Time `json:"updatedAt,omitempty"`
	}

	// ProjectAggregate is the store-maintained per-project summary. It is
	// read-only here: readiness is computed by the store.
	ProjectAggregate struct {
		ProjectKey      string     `json:"projectKey"`
		NameOfProject   string     `json:"nameOfProject"`
		Segment         string     `json:"segment"`
		Category        string     `json:"category"`
		Responsible     string     `json:"responsible"`
		RealYTD         float64    `json:"realYtd"`
		BudgetYTD       float64    `json:"budgetYtd"`
		ForecastSep     float64    `json:"forecastSep"`
		ForecastOct     float64    `json:"forecastOct"`
		ForecastNov     float64    `json:"forecastNov"`
		ForecastDec     float64    `json:"forecastDec"`
		ForecastReadyAt *time.Time `json:"forecastReadyAt,omitempty"`
		ForecastReady   bool       `json:"forecastReady"`
	}
)

var (
	ErrInvalidYear   = errors.New("invalid year")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyProject  = errors.New("empty project name")
	ErrInvalidRole   = errors.New("invalid role")
)

// Key returns the natural key of the row.
func (r LedgerRow) Key() NaturalKey {
	return NaturalKey{
		Year:        r.Year,
		Month:       r.Month,
		ProjectName: r.ProjectName,
		Responsible: r.Responsible,
	}
}

func (r LedgerRow) Validate() error {
	if r.Year <= 0 {
		return ErrInvalidYear
	}
	if r.Month < 1 || r.Month > 12 {
		return ErrInvalidMonth
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		return ErrEmptyProject
	}
	if !IsFinite(r.ActualAmountUSD) || !IsFinite(r.BudgetAmountUSD) {
		return ErrInvalidAmount
	}
	return nil
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%d-%02d %q/%q", k.Year, k.Month, k.ProjectName, k.Responsible)
}

// ParseRole maps a claim value onto a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// CanImport reports whether the role may load ledger files.
func (r Role) CanImport() bool { return r == RoleAdmin }

// ForecastFor returns the forecast amount for a forward month, or zero.
func (a ProjectAggregate) ForecastFor(month int) float64 {
	switch month {
	case 9:
		return a.ForecastSep
	case 10:
		return a.ForecastOct
	case 11:
		return a.ForecastNov
	case 12:
		return a.ForecastDec
	}
	return 0
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
