package entity

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/order-intake/constants"
)

// Failure is every message ledgered for one order in a run.
type Failure struct {
	BOL      string
	Messages []string
}

// PostedOrder is an order created and rated in the TMS during a run.
type PostedOrder struct {
	BOL     string
	OrderID string
	Rate    string
}

// BatchReport summarises one category run. Build it with NewBatchReport; it is
// not modified afterwards.
type BatchReport struct {
	category          constants.Category
	runID             string
	documents         int
	dropped           int
	alreadyReconciled int
	alreadyInRemote   int
	submitted         int
	failures          []Failure
	posted            []PostedOrder
	started           time.Time
	finished          time.Time
	cancelled         bool
}

// BatchCounts carries the counters a report is built from.
type BatchCounts struct {
	Documents         int
	Dropped           int
	AlreadyReconciled int
	AlreadyInRemote   int
	Submitted         int
}

// NewBatchReport copies its inputs so the report cannot change later.
func NewBatchReport(cat constants.Category, runID string, counts BatchCounts, failures []Failure, posted []PostedOrder, started, finished time.Time, cancelled bool) BatchReport {
	fs := make([]Failure, len(failures))
	for i, f := range failures {
		fs[i] = Failure{BOL: f.BOL, Messages: append([]string(nil), f.Messages...)}
	}
	return BatchReport{
		category:          cat,
		runID:             runID,
		documents:         counts.Documents,
		dropped:           counts.Dropped,
		alreadyReconciled: counts.AlreadyReconciled,
		alreadyInRemote:   counts.AlreadyInRemote,
		submitted:         counts.Submitted,
		failures:          fs,
		posted:            append([]PostedOrder(nil), posted...),
		started:           started,
		finished:          finished,
		cancelled:         cancelled,
	}
}

func (b BatchReport) Category() constants.Category { return b.category }
func (b BatchReport) RunID() string                { return b.runID }
func (b BatchReport) Documents() int               { return b.documents }
func (b BatchReport) Dropped() int                 { return b.dropped }
func (b BatchReport) AlreadyReconciled() int       { return b.alreadyReconciled }
func (b BatchReport) AlreadyInRemote() int         { return b.alreadyInRemote }
func (b BatchReport) Submitted() int               { return b.submitted }
func (b BatchReport) Failed() int                  { return len(b.failures) }
func (b BatchReport) Started() time.Time           { return b.started }
func (b BatchReport) Finished() time.Time          { return b.finished }
func (b BatchReport) Cancelled() bool              { return b.cancelled }

// Failures returns a copy of the failure list.
func (b BatchReport) Failures() []Failure {
	out := make([]Failure, len(b.failures))
	for i, f := range b.failures {
		out[i] = Failure{BOL: f.BOL, Messages: append([]string(nil), f.Messages...)}
	}
	return out
}

// Posted returns a copy of the orders created in this run.
func (b BatchReport) Posted() []PostedOrder {
	return append([]PostedOrder(nil), b.posted...)
}

// Summary renders the report the way the trigger returns it.
func (b BatchReport) Summary() string {
	s := fmt.Sprintf("%s: Total orders in folder: %d, Files processed (parsed): %d, Orders already processed (parsed): %d, Existing orders in LME API: %d, Successful LME API posts: %d, Failed orders: %d",
		b.category, b.documents, b.documents-b.dropped, b.alreadyReconciled, b.alreadyInRemote, b.submitted, len(b.failures))
	if b.cancelled {
		s += " (cancelled)"
	}
	return s
}
