package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/order-intake/internal/common"
)

// ClauseOp is how a Clause compares its column.
type ClauseOp int

const (
	OpEquals ClauseOp = iota
	OpContains
)

// Clause is one predicate of a location lookup. Lookups are built from an
// ordered clause list so callers can relax a query by dropping the tail.
type Clause struct {
	Column string
	Op     ClauseOp
	Value  string
}

func (c Clause) String() string {
	if c.Op == OpContains {
		return fmt.Sprintf("%s LIKE %%%s%%", c.Column, c.Value)
	}
	return fmt.Sprintf("%s = %s", c.Column, c.Value)
}

// LocationRow is a candidate facility with its hours for the requested weekday.
type LocationRow struct {
	Code  string
	Name  string
	Open  string // HHMM, "" when unset
	Close string
}

type LocationRepository interface {
	Find(ctx context.Context, clauses []Clause, day time.Weekday) ([]LocationRow, error)
}

type locationRepository struct {
	drv    *entsql.Driver
	table  string
	logger *slog.Logger
}

func NewLocationRepository(db *DB, table string, logger *slog.Logger) LocationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &locationRepository{drv: db.Driver, table: table, logger: logger}
}

var locationColumns = map[string]bool{
	"address1":  true,
	"city_name": true,
	"state":     true,
	"zip_code":  true,
	"name":      true,
}

// Find returns active locations matching every clause.
func (r *locationRepository) Find(ctx context.Context, clauses []Clause, day time.Weekday) ([]LocationRow, error) {
	preds := []*entsql.Predicate{entsql.EQ("is_active", "Y")}
	for _, c := range clauses {
		if !locationColumns[c.Column] {
			return nil, fmt.Errorf("%w: unknown location column %q", common.ErrInvalidInput, c.Column)
		}
		switch c.Op {
		case OpContains:
			preds = append(preds, entsql.Contains(c.Column, c.Value))
		default:
			preds = append(preds, entsql.EQ(c.Column, c.Value))
		}
	}
	dayName := strings.ToLower(day.String())
	b := entsql.Dialect(r.drv.Dialect())
	q, args := b.Select(
		"id", "name",
		fmt.Sprintf("CAST(%s_open AS TEXT)", dayName),
		fmt.Sprintf("CAST(%s_close AS TEXT)", dayName),
	).
		From(b.Table(r.table)).
		Where(entsql.And(preds...)).
		OrderBy("id").
		Query()

	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("locations.query.failed", "error", err)
		return nil, fmt.Errorf("%w: location lookup: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []LocationRow
	for rows.Next() {
		var (
			id, name        string
			openAt, closeAt stdsql.NullString
		)
		if err := rows.Scan(&id, &name, &openAt, &closeAt); err != nil {
			return nil, fmt.Errorf("%w: scan location: %v", common.ErrDatabase, err)
		}
		out = append(out, LocationRow{
			Code:  strings.TrimSpace(id),
			Name:  name,
			Open:  NormalizeHHMM(openAt.String),
			Close: NormalizeHHMM(closeAt.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.logger.Debug("locations.query.ok", "clauses", len(clauses), "day", dayName, "rows", len(out))
	return out, nil
}

// NormalizeHHMM turns a stored time ("08:00:00", "2024-01-01 08:00:00", "0800") into "0800".
// Unparseable or empty values become "".
func NormalizeHHMM(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if i := strings.LastIndexAny(v, " T"); i >= 0 {
		v = v[i+1:]
	}
	for _, layout := range []string{"15:04:05", "15:04:05.000", "15:04", "1504"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("1504")
		}
	}
	return ""
}
