package pipeline

import (
	"time"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/ledger"
)

// RunContext is the state of one category run. Every stage takes it by value
// and returns the updated copy.
type RunContext struct {
	RunID    string
	Category constants.Category
	Strategy *Strategy
	Ledger   *ledger.Ledger
	Started  time.Time

	Files     []string
	Documents []entity.Document
	Records   []*entity.OrderRecord // parsed this run
	Inserted  []*entity.OrderRecord // new rows, the enrichment candidates

	Counts    entity.BatchCounts
	Posted    []entity.PostedOrder
	Cancelled bool
}

// Report freezes rc into a BatchReport.
func (rc RunContext) Report(finished time.Time) entity.BatchReport {
	return entity.NewBatchReport(rc.Category, rc.RunID, rc.Counts, rc.Ledger.Failures(), rc.Posted, rc.Started, finished, rc.Cancelled)
}
