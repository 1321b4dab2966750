package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/attach"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/extract"
	"github.com/joseph-ayodele/order-intake/internal/orders"
	"github.com/joseph-ayodele/order-intake/internal/orders/grain"
	"github.com/joseph-ayodele/order-intake/internal/orders/resolute"
	"github.com/joseph-ayodele/order-intake/internal/tms"
)

// Parser turns an extracted document into an order record.
type Parser interface {
	Parse(doc entity.Document) (*entity.OrderRecord, error)
}

// Strategy is everything that differs between order categories.
type Strategy struct {
	Category   constants.Category
	CustomerID string
	Paths      common.CategoryPaths

	Extract        extract.DocumentExtractor
	Parse          Parser
	BuildPayload   func(rec *entity.OrderRecord) (*tms.OrderPayload, error)
	AttachDocument func(ctx context.Context, rec *entity.OrderRecord, created *tms.CreatedOrder, docPath string) error

	// Archiver moves created orders' documents out of Paths.Inbox. Nil
	// leaves them in place.
	Archiver tms.Archiver
}

// StrategyDeps are the shared collaborators DefaultStrategies wires in.
type StrategyDeps struct {
	Extractor extract.DocumentExtractor
	Archivers map[constants.Category]tms.Archiver
}

// DefaultStrategies builds the grain and resolute strategies from cfg.
func DefaultStrategies(cfg *common.Config, deps StrategyDeps, logger *slog.Logger) map[constants.Category]*Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[constants.Category]*Strategy, len(constants.AllCategories()))
	for _, cat := range constants.AllCategories() {
		customer := cfg.Customers[cat]
		s := &Strategy{
			Category:   cat,
			CustomerID: customer,
			Paths:      cfg.Paths[cat],
			Extract:    deps.Extractor,
			Archiver:   deps.Archivers[cat],
		}
		pc := orders.PayloadConfig{CompanyID: cfg.TMS.CompanyID, TZOffset: cfg.TMS.TZOffset}
		switch cat {
		case constants.Grain:
			s.Parse = grain.NewParser(customer, cfg.TMS.OpsUser, logger)
			// grain drop-offs are the customer's own plants
			pc.IntraCustomer = customer
		default:
			s.Parse = resolute.NewParser(cat, customer, cfg.TMS.OpsUser, logger)
		}
		s.BuildPayload = func(rec *entity.OrderRecord) (*tms.OrderPayload, error) {
			return orders.BuildPayload(rec, pc)
		}
		s.AttachDocument = attachHook(attach.NewAttacher(s.Paths.Attachments, logger), customer)
		out[cat] = s
	}
	return out
}

// attachHook renders supporting images for orders the TMS filed under the
// strategy's own customer.
func attachHook(a *attach.Attacher, customer string) func(context.Context, *entity.OrderRecord, *tms.CreatedOrder, string) error {
	return func(ctx context.Context, rec *entity.OrderRecord, created *tms.CreatedOrder, docPath string) error {
		if created.CustomerID != "" && created.CustomerID != customer {
			return nil
		}
		_, err := a.Attach(ctx, rec.BOL, docPath)
		return err
	}
}
