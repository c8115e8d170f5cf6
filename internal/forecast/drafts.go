// Package forecast holds uncommitted forecast edits for one editing session
// and turns them into ledger upserts.
package forecast

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"capex/internal/core"
)

var ErrInvalidDraft = errors.New("invalid draft value")

// DraftKey addresses one editable grid cell.
type DraftKey struct {
	Project string `json:"project"`
	Month   int    `json:"month"`
}

// Drafts is the set of pending values of one session. Values survive commits
// and are only replaced by later edits to the same cell.
type Drafts struct {
	mu     sync.RWMutex
	values map[DraftKey]float64
}

func NewDrafts() *Drafts {
	return &Drafts{values: make(map[DraftKey]float64)}
}

// SetDraft records raw as the pending value of (project, month). Any finite
// number is accepted, including negatives. An empty value drafts zero.
func (d *Drafts) SetDraft(project string, month int, raw string) error {
	v, err := core.ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	d.Set(DraftKey{Project: project, Month: month}, v)
	return nil
}

func (d *Drafts) Set(k DraftKey, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.values == nil {
		d.values = make(map[DraftKey]float64)
	}
	d.values[k] = v
}

func (d *Drafts) Value(project string, month int) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[DraftKey{Project: project, Month: month}]
	return v, ok
}

func (d *Drafts) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.values)
}

// Snapshot returns a copy safe to read while the session keeps editing.
func (d *Drafts) Snapshot() map[DraftKey]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.values)
}
