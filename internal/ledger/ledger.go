// Package ledger accumulates per-order failures for a single pipeline run.
package ledger

import (
	"sync"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

// Entry is one ledgered failure.
type Entry struct {
	Kind    common.Kind
	Stage   string
	Role    constants.StopRole
	Message string
}

// Ledger maps a BOL to its failures in the order they were recorded.
// Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	order   []string
	entries map[string][]Entry
}

func New() *Ledger {
	return &Ledger{entries: make(map[string][]Entry)}
}

// Record appends an entry for bol.
func (l *Ledger) Record(bol string, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[bol]; !ok {
		l.order = append(l.order, bol)
	}
	l.entries[bol] = append(l.entries[bol], e)
}

// RecordError appends re under its own BOL, keeping its kind, stage and role.
func (l *Ledger) RecordError(re *common.RecordError) {
	e := Entry{Kind: re.Kind, Stage: re.Stage, Role: re.Role}
	if re.Err != nil {
		e.Message = re.Err.Error()
	}
	l.Record(re.BOL, e)
}

// Retract removes the LocationNotFound entries for role, used when a later
// resolution for that stop succeeds. Other entries are never removed.
// It reports whether anything was removed.
func (l *Ledger) Retract(bol string, role constants.StopRole) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.entries[bol]
	if !ok {
		return false
	}
	kept := cur[:0:0]
	for _, e := range cur {
		if e.Kind == common.KindLocationNotFound && e.Role == role {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(cur) {
		return false
	}
	if len(kept) == 0 {
		delete(l.entries, bol)
		for i, k := range l.order {
			if k == bol {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
		return true
	}
	l.entries[bol] = kept
	return true
}

// Has reports whether bol has any failure this run.
func (l *Ledger) Has(bol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[bol]
	return ok
}

// Messages returns bol's messages in order.
func (l *Ledger) Messages(bol string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries[bol]))
	for _, e := range l.entries[bol] {
		out = append(out, e.Message)
	}
	return out
}

// Len is the number of BOLs with failures.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Failures renders the ledger in first-failure order.
func (l *Ledger) Failures() []entity.Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.Failure, 0, len(l.order))
	for _, bol := range l.order {
		msgs := make([]string, 0, len(l.entries[bol]))
		for _, e := range l.entries[bol] {
			msgs = append(msgs, e.Message)
		}
		out = append(out, entity.Failure{BOL: bol, Messages: msgs})
	}
	return out
}
