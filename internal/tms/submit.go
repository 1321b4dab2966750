package tms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/ledger"
	"github.com/joseph-ayodele/order-intake/internal/repository"
)

// OutcomeKind is how one submission ended.
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota + 1
	OutcomeAlreadyExists
	OutcomeFailed
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyExists:
		return "already_exists"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind    OutcomeKind
	OrderID string
	Rate    decimal.Decimal
	Reason  string
}

// API is the remote calls the workflow makes.
type API interface {
	CreateOrder(ctx context.Context, p *OrderPayload) (*CreatedOrder, error)
	Autorate(ctx context.Context, orderID string) (RateResult, error)
}

// Archiver moves a created order's source document out of the inbox.
type Archiver interface {
	Archive(ctx context.Context, src string) (string, error)
}

// Workflow is what a category contributes to submission.
type Workflow struct {
	InboxDir string
	Build    func(rec *entity.OrderRecord) (*OrderPayload, error)
	// Attach is best-effort; a nil Attach skips the step.
	Attach func(ctx context.Context, rec *entity.OrderRecord, created *CreatedOrder, docPath string) error
}

// Submitter runs one stored row through create, references, autorate and
// mark-processed. Each step's failure stops that row only.
type Submitter struct {
	orders   repository.OrderRepository
	remote   repository.TMSRepository
	api      API
	archiver Archiver
	ledger   *ledger.Ledger
	flow     Workflow
	logger   *slog.Logger
}

func NewSubmitter(orders repository.OrderRepository, remote repository.TMSRepository, api API, archiver Archiver, led *ledger.Ledger, flow Workflow, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{orders: orders, remote: remote, api: api, archiver: archiver, ledger: led, flow: flow, logger: logger}
}

func (s *Submitter) Submit(ctx context.Context, row *entity.OrderRecord) Outcome {
	bol := row.BOL
	log := s.logger.With("bol", bol, "run_id", common.RunIDFromContext(ctx))
	if s.ledger.Has(bol) {
		log.Info("submit.skip.ledgered")
		return Outcome{Kind: OutcomeSkipped, Reason: "ledgered earlier in this run"}
	}

	existing, err := s.remote.FindOrderByBOL(ctx, bol)
	if err != nil {
		return s.flag(ctx, bol, "submit.lookup", common.KindPersistence, fmt.Sprintf("Error checking TMS for existing order: %v", err))
	}
	if existing != nil {
		log.Info("submit.exists_in_tms", "order_id", existing.ID)
		return Outcome{Kind: OutcomeAlreadyExists, OrderID: existing.ID}
	}

	payload, err := s.flow.Build(row)
	if err == nil {
		err = ValidatePayload(payload)
	}
	if err != nil {
		return s.flag(ctx, bol, "submit.payload", common.KindWorkflowStep, fmt.Sprintf("Error building order payload: %v", err))
	}

	created, err := s.api.CreateOrder(ctx, payload)
	if err != nil {
		return s.flag(ctx, bol, "submit.create", common.KindRemoteAPI, createMessage(err))
	}
	log = log.With("order_id", created.ID)
	log.Info("submit.created")

	refs := []repository.Reference{
		{StopID: created.ShipperStopID, Qualifier: constants.Pickup.ReferenceQualifier(), Number: created.BLNum},
		{StopID: created.ConsigneeStopID, Qualifier: constants.Dropoff.ReferenceQualifier(), Number: created.ConsigneeRefNo},
	}
	for _, ref := range refs {
		if err := s.remote.InsertReference(ctx, ref); err != nil {
			s.ledger.RecordError(common.NewRecordError(common.KindWorkflowStep, "submit.reference", bol,
				fmt.Errorf("Error inserting reference number into database: %v", err)))
			s.setStatus(ctx, bol, constants.StatusFlagged, fmt.Sprintf("Unexpected error: %v", err))
			return Outcome{Kind: OutcomeFailed, OrderID: created.ID, Reason: err.Error()}
		}
	}

	s.setStatus(ctx, bol, constants.StatusCreated, "")

	docPath := filepath.Join(s.flow.InboxDir, row.OriginFile)
	if s.archiver != nil && row.OriginFile != "" {
		if moved, err := s.archiver.Archive(ctx, docPath); err != nil {
			log.Error("submit.archive.failed", "file", docPath, "error", err)
		} else if moved != "" {
			docPath = moved
		}
	}

	rate, err := s.api.Autorate(ctx, created.ID)
	if err != nil {
		msg := autorateMessage(bol, err)
		s.ledger.RecordError(common.NewRecordError(common.KindRemoteAPI, "submit.autorate", bol, errors.New(msg)))
		if derr := s.orders.SetStatusDesc(ctx, bol, msg); derr != nil {
			log.Error("submit.status_desc.failed", "error", derr)
		}
		return Outcome{Kind: OutcomeFailed, OrderID: created.ID, Reason: msg}
	}

	s.setStatus(ctx, bol, constants.StatusAutorated, "")
	if err := s.orders.MarkProcessed(ctx, bol); err != nil {
		msg := fmt.Sprintf("Error updating order status in database: %v", err)
		log.Error("submit.mark_processed.failed", "error", err)
		s.ledger.RecordError(common.NewRecordError(common.KindWorkflowStep, "submit.mark_processed", bol, errors.New(msg)))
		if derr := s.orders.SetStatusDesc(ctx, bol, msg); derr != nil {
			log.Error("submit.status_desc.failed", "error", derr)
		}
		return Outcome{Kind: OutcomeFailed, OrderID: created.ID, Reason: msg}
	}

	out := Outcome{Kind: OutcomeCreated, OrderID: created.ID}
	if rate.HasCharge {
		out.Rate = rate.TotalCharge
	}
	if s.flow.Attach != nil {
		if err := s.flow.Attach(ctx, row, created, docPath); err != nil {
			log.Warn("submit.attach.failed", "error", err)
		}
	}
	log.Info("submit.processed", "rate", out.Rate.String())
	return out
}

// flag ledgers msg and moves the row to flagged.
func (s *Submitter) flag(ctx context.Context, bol, stage string, kind common.Kind, msg string) Outcome {
	s.logger.Error("submit.failed", "bol", bol, "stage", stage, "error", msg)
	s.ledger.RecordError(common.NewRecordError(kind, stage, bol, errors.New(msg)))
	s.setStatus(ctx, bol, constants.StatusFlagged, msg)
	return Outcome{Kind: OutcomeFailed, Reason: msg}
}

// setStatus advances the local row. A failed write is ledgered; the remote
// side is never compensated.
func (s *Submitter) setStatus(ctx context.Context, bol string, status constants.OrderStatus, desc string) {
	if err := s.orders.UpdateStatus(ctx, bol, status, desc); err != nil {
		s.logger.Error("submit.status.failed", "bol", bol, "status", status, "error", err)
		s.ledger.RecordError(common.NewRecordError(common.KindPersistence, "submit.status", bol,
			fmt.Errorf("Error setting status %s: %v", status, err)))
	}
}

func createMessage(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.Is(err, ErrDecode):
		return "Error decoding JSON response from API: " + strings.TrimPrefix(err.Error(), ErrDecode.Error()+": ")
	default:
		return "API error: " + err.Error()
	}
}

func autorateMessage(bol string, err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("Autorate ERROR %s,api error %d: %s", bol, apiErr.Status, apiErr.Body)
	}
	return fmt.Sprintf("Autorate ERROR %s,api error API connection error: %v", bol, err)
}
