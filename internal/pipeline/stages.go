package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/ingest"
	"github.com/joseph-ayodele/order-intake/internal/location"
	"github.com/joseph-ayodele/order-intake/internal/ocr"
	"github.com/joseph-ayodele/order-intake/internal/orders"
	"github.com/joseph-ayodele/order-intake/internal/repository"
	"github.com/joseph-ayodele/order-intake/internal/tms"
)

const enrichedDesc = "Processed - updated"

func (o *Orchestrator) scanStage(ctx context.Context, rc RunContext) (RunContext, error) {
	files, _, err := ingest.Scan(ctx, rc.Strategy.Paths.Inbox, nil, o.logger)
	if err != nil {
		if ctx.Err() != nil {
			rc.Cancelled = true
			return rc, nil
		}
		return rc, &common.StageError{Stage: "scan", Err: err}
	}
	rc.Files = files
	rc.Counts.Documents = len(files)
	return rc, nil
}

// extractStage drops unreadable documents. A dropped document has no row, so
// it is logged and counted but never ledgered. A missing extraction tool aborts.
func (o *Orchestrator) extractStage(ctx context.Context, rc RunContext) (RunContext, error) {
	work := context.WithoutCancel(ctx)
	for _, path := range rc.Files {
		if ctx.Err() != nil {
			rc.Cancelled = true
			break
		}
		doc, err := rc.Strategy.Extract.Extract(work, path)
		switch {
		case err == nil:
			rc.Documents = append(rc.Documents, doc)
		case common.IsStageFatal(err):
			return rc, err
		case errors.Is(err, ocr.ErrInvalidPDF):
			o.logger.Warn("pipeline.extract.skipped_invalid_pdf", "file", path, "error", err)
			rc.Counts.Dropped++
		default:
			o.logger.Error("pipeline.extract.dropped", "file", path, "bol_hint", doc.BOLHint,
				"error", common.NewRecordError(common.KindExtraction, "extract", doc.BOLHint, err))
			rc.Counts.Dropped++
		}
	}
	return rc, nil
}

// parseStage drops records the parser cannot recover. Per-field problems
// stay on the record and are ledgered once the row is inserted.
func (o *Orchestrator) parseStage(ctx context.Context, rc RunContext) (RunContext, error) {
	for _, doc := range rc.Documents {
		if ctx.Err() != nil {
			rc.Cancelled = true
			break
		}
		rec, err := rc.Strategy.Parse.Parse(doc)
		if err != nil {
			o.logger.Error("pipeline.parse.dropped", "file", doc.Name, "bol_hint", doc.BOLHint,
				"error", common.NewRecordError(common.KindFieldParse, "parse", doc.BOLHint, err))
			rc.Counts.Dropped++
			continue
		}
		rec.Category = rc.Category
		if rec.OriginFile == "" {
			rec.OriginFile = doc.Name
		}
		rc.Records = append(rc.Records, rec)
	}
	return rc, nil
}

func (o *Orchestrator) insertStage(ctx context.Context, rc RunContext) (RunContext, error) {
	if len(rc.Records) == 0 {
		return rc, nil
	}
	if err := o.deps.Orders.Ping(ctx); err != nil {
		return rc, &common.StageError{Stage: "insert", Err: err}
	}
	work := context.WithoutCancel(ctx)
	for _, rec := range rc.Records {
		if ctx.Err() != nil {
			rc.Cancelled = true
			break
		}
		out, err := o.deps.Orders.Insert(work, rec)
		if err != nil {
			rc.Ledger.RecordError(common.NewRecordError(common.KindPersistence, "insert", rec.BOL,
				fmt.Errorf("Error inserting order into database: %v", err)))
			continue
		}
		if out == repository.AlreadyExists {
			o.logger.Info("pipeline.insert.already_reconciled", "bol", rec.BOL)
			rc.Counts.AlreadyReconciled++
			continue
		}
		for _, msg := range rec.Errors {
			rc.Ledger.RecordError(common.NewRecordError(common.KindFieldParse, "parse", rec.BOL, errors.New(msg)))
		}
		rc.Inserted = append(rc.Inserted, rec)
	}
	return rc, nil
}

// enrichStage resolves both stops of every new row, stamps schedule windows
// and writes the row back as downloaded, or flagged with its ledger messages.
func (o *Orchestrator) enrichStage(ctx context.Context, rc RunContext) (RunContext, error) {
	if len(rc.Inserted) == 0 {
		return rc, nil
	}
	if err := o.deps.Remote.Ping(ctx); err != nil {
		return rc, &common.StageError{Stage: "enrich", Err: err}
	}
	work := context.WithoutCancel(ctx)
	for _, rec := range rc.Inserted {
		if ctx.Err() != nil {
			rc.Cancelled = true
			break
		}
		if rc.Ledger.Has(rec.BOL) {
			continue
		}
		o.enrich(work, rc, rec)
	}
	return rc, nil
}

func (o *Orchestrator) enrich(ctx context.Context, rc RunContext, rec *entity.OrderRecord) {
	log := o.logger.With("bol", rec.BOL)
	var missing []constants.StopRole
	for _, role := range []constants.StopRole{constants.Pickup, constants.Dropoff} {
		if !o.resolveStop(ctx, rc, rec, role) {
			missing = append(missing, role)
		}
	}

	if len(missing) > 0 && o.deps.Fallback != nil {
		o.applyFallback(ctx, rc, rec, missing)
	}

	for _, role := range []constants.StopRole{constants.Pickup, constants.Dropoff} {
		s := rec.Stop(role)
		openAt, closeAt := location.DefaultWindow(role)
		if s.Location != nil && s.Location.Open != "" && s.Location.Close != "" {
			openAt, closeAt = s.Location.Open, s.Location.Close
		}
		w, err := orders.FormatWindow(s.Date, openAt, closeAt, o.deps.TZOffset)
		if err != nil {
			rc.Ledger.RecordError(common.NewRecordError(common.KindWorkflowStep, "enrich", rec.BOL,
				fmt.Errorf("Error building %s schedule window: %v", role, err)).ForStop(role))
			continue
		}
		s.Window = w
	}

	status, desc := constants.StatusDownloaded, enrichedDesc
	if rc.Ledger.Has(rec.BOL) {
		status, desc = constants.StatusFlagged, strings.Join(rc.Ledger.Messages(rec.BOL), "; ")
	}
	if err := o.deps.Orders.UpdateEnrichment(ctx, rec, status, desc); err != nil {
		log.Error("pipeline.enrich.update_failed", "error", err)
		rc.Ledger.RecordError(common.NewRecordError(common.KindPersistence, "enrich", rec.BOL,
			fmt.Errorf("Error updating order in database: %v", err)))
		return
	}
	log.Info("pipeline.enrich.done", "status", status)
}

// resolveStop sets the stop's location and reports whether it was found.
// Misses and lookup failures are ledgered against the role.
func (o *Orchestrator) resolveStop(ctx context.Context, rc RunContext, rec *entity.OrderRecord, role constants.StopRole) bool {
	s := rec.Stop(role)
	ref, trace, err := o.resolver.Resolve(ctx, location.Request{Role: role, Address: s.Address, Company: s.Company, Date: s.Date})
	if err == nil {
		s.Location = &ref
		o.logger.Debug("pipeline.enrich.resolved", "bol", rec.BOL, "role", role, "code", ref.Code, "steps", strings.Join(trace.Steps(), ","))
		return true
	}
	kind := common.KindLocationNotFound
	if !location.IsNotFound(err) {
		kind = common.KindPersistence
	}
	rc.Ledger.RecordError(common.NewRecordError(kind, "enrich", rec.BOL, err).ForStop(role))
	return false
}

// applyFallback asks the fallback once for the record and re-resolves each
// missing stop it returned an address for. A success retracts the stop's
// not-found entry; fallback errors leave the entries as they are.
func (o *Orchestrator) applyFallback(ctx context.Context, rc RunContext, rec *entity.OrderRecord, missing []constants.StopRole) {
	doc := entity.Document{Path: filepath.Join(rc.Strategy.Paths.Inbox, rec.OriginFile), Name: rec.OriginFile, BOLHint: rec.BOL}
	frags, err := o.deps.Fallback.Fragments(ctx, doc)
	if err != nil {
		o.logger.Warn("pipeline.enrich.fallback_failed", "bol", rec.BOL, "error", err)
		return
	}
	for _, role := range missing {
		frag, ok := frags[role]
		if !ok || frag.Empty() {
			continue
		}
		s := rec.Stop(role)
		prev := *s
		s.Address = frag.Line(role == constants.Pickup)
		if frag.Company != "" {
			s.Company = frag.Company
		}
		if frag.State != "" {
			s.State = frag.State
		}

		ref, _, err := o.resolver.Resolve(ctx, location.Request{Role: role, Address: s.Address, Company: s.Company, Date: s.Date})
		if err != nil {
			*s = prev
			continue
		}
		s.Location = &ref
		rc.Ledger.Retract(rec.BOL, role)
		o.logger.Info("pipeline.enrich.fallback_resolved", "bol", rec.BOL, "role", role, "code", ref.Code)
	}
}

func (o *Orchestrator) submitStage(ctx context.Context, rc RunContext) (RunContext, error) {
	if err := o.deps.Remote.Ping(ctx); err != nil {
		return rc, &common.StageError{Stage: "submit", Err: err}
	}
	pending, err := o.deps.Orders.ListPending(ctx, rc.Strategy.CustomerID)
	if err != nil {
		return rc, &common.StageError{Stage: "submit", Err: err}
	}

	sub := tms.NewSubmitter(o.deps.Orders, o.deps.Remote, o.deps.API, rc.Strategy.Archiver, rc.Ledger, tms.Workflow{
		InboxDir: rc.Strategy.Paths.Inbox,
		Build:    rc.Strategy.BuildPayload,
		Attach:   rc.Strategy.AttachDocument,
	}, o.logger)

	var (
		mu   sync.Mutex
		work = context.WithoutCancel(ctx)
	)
	record := func(row *entity.OrderRecord, out tms.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch out.Kind {
		case tms.OutcomeCreated:
			rc.Counts.Submitted++
			rc.Posted = append(rc.Posted, entity.PostedOrder{BOL: row.BOL, OrderID: out.OrderID, Rate: out.Rate.StringFixed(2)})
		case tms.OutcomeAlreadyExists:
			rc.Counts.AlreadyInRemote++
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.deps.Workers)
	for _, row := range pending {
		if ctx.Err() != nil {
			rc.Cancelled = true
			break
		}
		if rc.Ledger.Has(row.BOL) {
			continue
		}
		g.Go(func() error {
			record(row, sub.Submit(work, row))
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(rc.Posted, func(i, j int) bool { return rc.Posted[i].BOL < rc.Posted[j].BOL })
	return rc, nil
}
