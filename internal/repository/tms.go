package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/order-intake/internal/common"
)

// RemoteOrder is an order row already present in the TMS.
type RemoteOrder struct {
	ID              string
	BOL             string
	ShipperStopID   string
	ConsigneeStopID string
}

// Reference is a cross-reference row tying a BOL or PO number to a stop.
type Reference struct {
	StopID    string
	Qualifier string // "PU" | "PO"
	Number    string
}

// TMSRepository reads and writes the TMS database directly.
type TMSRepository interface {
	FindOrderByBOL(ctx context.Context, bol string) (*RemoteOrder, error)
	InsertReference(ctx context.Context, ref Reference) error
	Ping(ctx context.Context) error
}

type tmsRepository struct {
	drv       *entsql.Driver
	tables    Tables
	companyID string
	host      string
	logger    *slog.Logger
}

func NewTMSRepository(db *DB, tables Tables, companyID string, logger *slog.Logger) TMSRepository {
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := os.Hostname()
	return &tmsRepository{drv: db.Driver, tables: tables, companyID: companyID, host: host, logger: logger}
}

// FindOrderByBOL returns nil, nil when the TMS has no order for bol.
func (r *tmsRepository) FindOrderByBOL(ctx context.Context, bol string) (*RemoteOrder, error) {
	b := entsql.Dialect(r.drv.Dialect())
	q, args := b.Select("id", "blnum", "shipper_stop_id", "consignee_stop_id").
		From(b.Table(r.tables.RemoteOrders)).
		Where(entsql.EQ("blnum", bol)).
		Limit(1).
		Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("tms.orders.query.failed", "bol", bol, "error", err)
		return nil, fmt.Errorf("%w: tms order lookup: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var o RemoteOrder
	if err := rows.Scan(&o.ID, &o.BOL, &o.ShipperStopID, &o.ConsigneeStopID); err != nil {
		return nil, fmt.Errorf("%w: scan tms order: %v", common.ErrDatabase, err)
	}
	o.ID = strings.TrimSpace(o.ID)
	return &o, nil
}

func (r *tmsRepository) InsertReference(ctx context.Context, ref Reference) error {
	b := entsql.Dialect(r.drv.Dialect())
	q, args := b.Insert(r.tables.ReferenceNumber).
		Columns("company_id", "element_id", "partner_id", "reference_number", "reference_qual", "stop_id", "id", "version", "send_to_driver").
		Values(r.companyID, 128, r.companyID, ref.Number, ref.Qualifier, ref.StopID, r.referenceID(), "004010", "Y").
		Query()
	var res entsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("tms.reference.insert.failed", "stop_id", ref.StopID, "qual", ref.Qualifier, "error", err)
		return fmt.Errorf("%w: insert reference %s/%s: %v", common.ErrDatabase, ref.Qualifier, ref.StopID, err)
	}
	return nil
}

func (r *tmsRepository) Ping(ctx context.Context) error {
	b := entsql.Dialect(r.drv.Dialect())
	q, args := b.Select("COUNT(*)").From(b.Table(r.tables.Locations)).Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return fmt.Errorf("%w: ping tms: %v", common.ErrDatabase, err)
	}
	return rows.Close()
}

// referenceID mirrors the TMS's own id shape: 12 random hex chars plus the host name.
func (r *tmsRepository) referenceID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	id = id[len(id)-12:] + r.host
	if len(id) > 32 {
		id = id[:32]
	}
	return id
}
