// Package location resolves free-text stop addresses to TMS facility codes.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/repository"
)

// Finder is the location lookup the resolver runs its queries through.
type Finder interface {
	Find(ctx context.Context, clauses []repository.Clause, day time.Weekday) ([]repository.LocationRow, error)
}

// Request is one stop to resolve.
type Request struct {
	Role    constants.StopRole
	Address string
	Company string
	Date    string // MM/DD/YYYY, selects the weekday hours
}

// Step names, in the order the chain tries them.
const (
	StepExact         = "exact"
	StepNarrow        = "narrow"
	StepRelaxed       = "relaxed"
	StepRelaxedNarrow = "relaxed-narrow"
	StepOverride      = "override"
)

// Attempt is one step of a resolution.
type Attempt struct {
	Step  string
	Query string
	Hits  int
}

// Trace lists every step tried for one request, in order.
type Trace []Attempt

// Steps returns the step names of t.
func (t Trace) Steps() []string {
	out := make([]string, len(t))
	for i, a := range t {
		out[i] = a.Step
	}
	return out
}

type Resolver struct {
	finder    Finder
	overrides Overrides
	logger    *slog.Logger
}

func NewResolver(finder Finder, overrides Overrides, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if overrides == nil {
		overrides = DefaultOverrides()
	}
	return &Resolver{finder: finder, overrides: overrides, logger: logger}
}

// Resolve walks the chain and returns the first match. A miss is reported as
// an error wrapping common.ErrLocationNotFound; any other error is a query failure.
func (r *Resolver) Resolve(ctx context.Context, req Request) (entity.LocationRef, Trace, error) {
	var trace Trace
	day, err := time.Parse("01/02/2006", strings.TrimSpace(req.Date))
	if err != nil {
		return entity.LocationRef{}, trace, fmt.Errorf("%w: %s stop date %q", common.ErrInvalidInput, req.Role, req.Date)
	}
	weekday := day.Weekday()

	clauses := Clauses(req.Role, req.Address)
	if len(clauses) > 0 {
		ref, ok, err := r.attempt(ctx, &trace, StepExact, StepNarrow, clauses, req.Company, weekday)
		if err != nil || ok {
			return ref, trace, err
		}
		if req.Role == constants.Dropoff && trace[0].Hits == 0 {
			ref, ok, err = r.attempt(ctx, &trace, StepRelaxed, StepRelaxedNarrow, clauses[:len(clauses)-1], req.Company, weekday)
			if err != nil || ok {
				return ref, trace, err
			}
		}
	}

	code, ok := r.overrides.Lookup(req.Role, req.Address)
	trace = append(trace, Attempt{Step: StepOverride, Query: Normalize(req.Address), Hits: boolHits(ok)})
	if ok {
		r.logger.Info("location.override", "role", req.Role, "address", req.Address, "code", code)
		return entity.LocationRef{Code: code, Open: "0001", Close: "2359"}, trace, nil
	}

	r.logger.Warn("location.not_found", "role", req.Role, "address", req.Address, "steps", strings.Join(trace.Steps(), ","))
	return entity.LocationRef{}, trace, fmt.Errorf("location code not found for %s: %s: %w", req.Role, req.Address, common.ErrLocationNotFound)
}

// attempt runs one query and, when it is ambiguous, the company-narrowed
// version of it. A unique row wins.
func (r *Resolver) attempt(ctx context.Context, trace *Trace, step, narrowStep string, clauses []repository.Clause, company string, day time.Weekday) (entity.LocationRef, bool, error) {
	rows, err := r.find(ctx, trace, step, clauses, day)
	if err != nil {
		return entity.LocationRef{}, false, err
	}
	if len(rows) == 1 {
		return toRef(rows[0]), true, nil
	}
	if len(rows) == 0 || strings.TrimSpace(company) == "" {
		return entity.LocationRef{}, false, nil
	}
	narrowed := append(append([]repository.Clause{}, clauses...), repository.Clause{Column: "name", Op: repository.OpContains, Value: company})
	rows, err = r.find(ctx, trace, narrowStep, narrowed, day)
	if err != nil {
		return entity.LocationRef{}, false, err
	}
	if len(rows) == 1 {
		return toRef(rows[0]), true, nil
	}
	return entity.LocationRef{}, false, nil
}

func (r *Resolver) find(ctx context.Context, trace *Trace, step string, clauses []repository.Clause, day time.Weekday) ([]repository.LocationRow, error) {
	rows, err := r.finder.Find(ctx, clauses, day)
	*trace = append(*trace, Attempt{Step: step, Query: describe(clauses), Hits: len(rows)})
	if err != nil {
		r.logger.Error("location.query.failed", "step", step, "error", err)
		return nil, fmt.Errorf("location %s lookup: %w", step, err)
	}
	r.logger.Debug("location.query", "step", step, "hits", len(rows))
	return rows, nil
}

// Clauses builds the exact-match predicate list for an address. Pickups key on
// the first token plus state and zip; drop-offs on the first two tokens, state
// and city. The last clause is the one relaxed first.
func Clauses(role constants.StopRole, address string) []repository.Clause {
	toks := strings.Fields(address)
	if role == constants.Pickup {
		if len(toks) < 3 {
			return nil
		}
		return []repository.Clause{
			{Column: "address1", Op: repository.OpContains, Value: toks[0]},
			{Column: "state", Op: repository.OpEquals, Value: toks[len(toks)-2]},
			{Column: "zip_code", Op: repository.OpEquals, Value: toks[len(toks)-1]},
		}
	}
	if len(toks) < 4 {
		return nil
	}
	return []repository.Clause{
		{Column: "address1", Op: repository.OpContains, Value: toks[0]},
		{Column: "state", Op: repository.OpEquals, Value: toks[len(toks)-1]},
		{Column: "city_name", Op: repository.OpContains, Value: toks[len(toks)-2]},
		{Column: "address1", Op: repository.OpContains, Value: toks[1]},
	}
}

func describe(clauses []repository.Clause) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

func toRef(row repository.LocationRow) entity.LocationRef {
	ref := entity.LocationRef{Code: row.Code, Open: row.Open, Close: row.Close}
	if ref.Open == "" {
		ref.Open = "0000"
	}
	if ref.Close == "" {
		ref.Close = "0000"
	}
	return ref
}

func boolHits(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

// IsNotFound reports whether err is a resolver miss.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrLocationNotFound)
}
