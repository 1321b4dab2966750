package repository

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

// InsertOutcome is the result of offering a record to the store.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// ErrStatusTransition is returned when an update would move a row backwards or touch a processed row.
var ErrStatusTransition = errors.New("status transition not allowed")

type OrderRepository interface {
	Insert(ctx context.Context, rec *entity.OrderRecord) (InsertOutcome, error)
	FindByBOL(ctx context.Context, bol string) (*entity.OrderRecord, error)
	UpdateEnrichment(ctx context.Context, rec *entity.OrderRecord, status constants.OrderStatus, desc string) error
	UpdateStatus(ctx context.Context, bol string, status constants.OrderStatus, desc string) error
	SetStatusDesc(ctx context.Context, bol, desc string) error
	MarkProcessed(ctx context.Context, bol string) error
	ListPending(ctx context.Context, customerID string) ([]*entity.OrderRecord, error)
	Ping(ctx context.Context) error
}

type orderRepository struct {
	drv    *entsql.Driver
	table  string
	now    func() time.Time
	logger *slog.Logger
}

func NewOrderRepository(db *DB, table string, logger *slog.Logger) OrderRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &orderRepository{drv: db.Driver, table: table, now: time.Now, logger: logger}
}

var orderColumns = []string{
	"bol", "category", "cons_ref", "cust_order_no", "collection_method", "customer_id",
	"ordered_date", "revenue_code", "commodity_desc", "commodity", "ops_user", "equipment_type_id",
	"pickup_addr", "pickup_company", "pickup_loc_code", "pickup_state", "pickup_date", "pickup_window",
	"cons_addr", "cons_company", "cons_loc_code", "cons_state", "consignee_date", "consignee_window",
	"order_status", "is_processed", "doc_to_attach", "status_desc",
}

func (r *orderRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

// Insert writes rec unless its BOL is already stored. The conflict is settled
// by the unique key, so concurrent runs cannot create duplicates.
func (r *orderRepository) Insert(ctx context.Context, rec *entity.OrderRecord) (InsertOutcome, error) {
	status, desc := constants.StatusParsed, "Parsed"
	if rec.HasErrors() {
		status, desc = constants.StatusFlagged, strings.Join(rec.Errors, "; ")
	}
	now := r.now()
	q, args := r.builder().Insert(r.table).
		Columns(append(orderColumns, "processed_date", "last_updated")...).
		Values(
			rec.BOL, string(rec.Category), rec.ConsRef, rec.CustOrderNo, rec.CollectionMethod, rec.CustomerID,
			rec.OrderedDate, rec.RevenueCode, rec.CommodityDesc, rec.Commodity, rec.OpsUser, rec.EquipmentTypeID,
			rec.Pickup.Address, rec.Pickup.Company, "", rec.Pickup.State, rec.Pickup.Date, "",
			rec.Dropoff.Address, rec.Dropoff.Company, "", rec.Dropoff.State, rec.Dropoff.Date, "",
			string(status), 0, rec.OriginFile, desc, now, now,
		).
		OnConflict(entsql.ConflictColumns("bol"), entsql.DoNothing()).
		Query()

	var res entsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("orders.insert.failed", "bol", rec.BOL, "error", err)
		return 0, fmt.Errorf("%w: insert %s: %v", common.ErrDatabase, rec.BOL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		r.logger.Info("orders.insert.exists", "bol", rec.BOL)
		return AlreadyExists, nil
	}
	rec.Status, rec.StatusDesc, rec.LastUpdated = status, desc, now
	r.logger.Debug("orders.insert.ok", "bol", rec.BOL, "status", status)
	return Inserted, nil
}

func (r *orderRepository) FindByBOL(ctx context.Context, bol string) (*entity.OrderRecord, error) {
	q, args := r.builder().Select(orderColumns...).
		From(r.builder().Table(r.table)).
		Where(entsql.EQ("bol", bol)).
		Query()
	recs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("order %s: %w", bol, common.ErrNotFound)
	}
	return recs[0], nil
}

// UpdateEnrichment stores resolved stops and windows and advances the row to
// status (downloaded or flagged). Processed rows are never touched.
func (r *orderRepository) UpdateEnrichment(ctx context.Context, rec *entity.OrderRecord, status constants.OrderStatus, desc string) error {
	cur, err := r.FindByBOL(ctx, rec.BOL)
	if err != nil {
		return err
	}
	if !constants.CanTransition(cur.Status, status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrStatusTransition, rec.BOL, cur.Status, status)
	}
	code := func(s entity.Stop) string {
		if s.Location == nil {
			return ""
		}
		return s.Location.Code
	}
	q, args := r.builder().Update(r.table).
		Set("pickup_addr", rec.Pickup.Address).
		Set("pickup_loc_code", code(rec.Pickup)).
		Set("pickup_state", rec.Pickup.State).
		Set("pickup_date", rec.Pickup.Date).
		Set("pickup_window", rec.Pickup.Window).
		Set("cons_addr", rec.Dropoff.Address).
		Set("cons_loc_code", code(rec.Dropoff)).
		Set("cons_state", rec.Dropoff.State).
		Set("consignee_date", rec.Dropoff.Date).
		Set("consignee_window", rec.Dropoff.Window).
		Set("order_status", string(status)).
		Set("status_desc", desc).
		Set("last_updated", r.now()).
		Where(entsql.And(
			entsql.EQ("bol", rec.BOL),
			entsql.NEQ("order_status", string(constants.StatusProcessed)),
		)).
		Query()
	if err := r.exec(ctx, rec.BOL, q, args); err != nil {
		return err
	}
	rec.Status, rec.StatusDesc = status, desc
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, bol string, status constants.OrderStatus, desc string) error {
	cur, err := r.FindByBOL(ctx, bol)
	if err != nil {
		return err
	}
	if !constants.CanTransition(cur.Status, status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrStatusTransition, bol, cur.Status, status)
	}
	if desc == "" {
		desc = cur.StatusDesc
	}
	q, args := r.builder().Update(r.table).
		Set("order_status", string(status)).
		Set("status_desc", desc).
		Set("last_updated", r.now()).
		Where(entsql.And(
			entsql.EQ("bol", bol),
			entsql.NEQ("order_status", string(constants.StatusProcessed)),
		)).
		Query()
	return r.exec(ctx, bol, q, args)
}

// SetStatusDesc rewrites status_desc and leaves the status where it is.
func (r *orderRepository) SetStatusDesc(ctx context.Context, bol, desc string) error {
	q, args := r.builder().Update(r.table).
		Set("status_desc", desc).
		Set("last_updated", r.now()).
		Where(entsql.And(
			entsql.EQ("bol", bol),
			entsql.NEQ("order_status", string(constants.StatusProcessed)),
		)).
		Query()
	return r.exec(ctx, bol, q, args)
}

// MarkProcessed sets is_processed and the terminal status in one write.
func (r *orderRepository) MarkProcessed(ctx context.Context, bol string) error {
	now := r.now()
	q, args := r.builder().Update(r.table).
		Set("is_processed", 1).
		Set("order_status", string(constants.StatusProcessed)).
		Set("processed_date", now).
		Set("last_updated", now).
		Where(entsql.And(
			entsql.EQ("bol", bol),
			entsql.EQ("is_processed", 0),
		)).
		Query()
	return r.exec(ctx, bol, q, args)
}

// ListPending returns enriched rows for customerID that still need submitting.
func (r *orderRepository) ListPending(ctx context.Context, customerID string) ([]*entity.OrderRecord, error) {
	q, args := r.builder().Select(orderColumns...).
		From(r.builder().Table(r.table)).
		Where(entsql.And(
			entsql.EQ("order_status", string(constants.StatusDownloaded)),
			entsql.EQ("is_processed", 0),
			entsql.EQ("customer_id", customerID),
		)).
		OrderBy("bol").
		Query()
	return r.query(ctx, q, args)
}

func (r *orderRepository) Ping(ctx context.Context) error {
	q, args := r.builder().Select("COUNT(*)").From(r.builder().Table(r.table)).Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return fmt.Errorf("%w: ping %s: %v", common.ErrDatabase, r.table, err)
	}
	return rows.Close()
}

func (r *orderRepository) exec(ctx context.Context, bol, q string, args []any) error {
	var res entsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("orders.update.failed", "bol", bol, "error", err)
		return fmt.Errorf("%w: update %s: %v", common.ErrDatabase, bol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s has no updatable row", ErrStatusTransition, bol)
	}
	return nil
}

func (r *orderRepository) query(ctx context.Context, q string, args []any) ([]*entity.OrderRecord, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("orders.query.failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.OrderRecord
	for rows.Next() {
		var (
			rec                        entity.OrderRecord
			category, status           string
			puCode, soCode, doc        string
			isProcessed                int64
			consRef, custOrder, method stdsql.NullString
		)
		if err := rows.Scan(
			&rec.BOL, &category, &consRef, &custOrder, &method, &rec.CustomerID,
			&rec.OrderedDate, &rec.RevenueCode, &rec.CommodityDesc, &rec.Commodity, &rec.OpsUser, &rec.EquipmentTypeID,
			&rec.Pickup.Address, &rec.Pickup.Company, &puCode, &rec.Pickup.State, &rec.Pickup.Date, &rec.Pickup.Window,
			&rec.Dropoff.Address, &rec.Dropoff.Company, &soCode, &rec.Dropoff.State, &rec.Dropoff.Date, &rec.Dropoff.Window,
			&status, &isProcessed, &doc, &rec.StatusDesc,
		); err != nil {
			return nil, fmt.Errorf("%w: scan order: %v", common.ErrDatabase, err)
		}
		rec.Category = constants.Category(category)
		rec.ConsRef, rec.CustOrderNo, rec.CollectionMethod = consRef.String, custOrder.String, method.String
		rec.Status = constants.OrderStatus(status)
		rec.IsProcessed = isProcessed != 0
		rec.OriginFile = doc
		rec.Pickup.Role, rec.Dropoff.Role = constants.Pickup, constants.Dropoff
		if puCode != "" {
			rec.Pickup.Location = &entity.LocationRef{Code: puCode}
		}
		if soCode != "" {
			rec.Dropoff.Location = &entity.LocationRef{Code: soCode}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}
