package entity

import (
	"time"

	"github.com/joseph-ayodele/order-intake/constants"
)

// LocationRef is a resolved TMS facility with its operating window for the stop date.
type LocationRef struct {
	Code  string
	Open  string // HHMM
	Close string // HHMM
}

// Stop is one end of an order.
type Stop struct {
	Role     constants.StopRole
	Address  string `validate:"required"` // free text as parsed, "<street> <city> <ST>[ <zip>]"
	State    string
	Company  string
	Date     string `validate:"required,usdate"` // MM/DD/YYYY
	Location *LocationRef
	Window   string // "<early>|<late>" schedule stamps, set during enrichment
}

// OrderRecord is one shipment order as it moves through a run.
type OrderRecord struct {
	BOL              string `validate:"required"`
	ConsRef          string
	CustOrderNo      string
	CollectionMethod string
	CustomerID       string `validate:"required"`
	OrderedDate      string `validate:"required,usdate"`
	RevenueCode      string
	CommodityDesc    string
	Commodity        string
	OpsUser          string
	EquipmentTypeID  string
	Category         constants.Category

	Pickup  Stop
	Dropoff Stop

	OriginFile  string // file name inside the category inbox
	Status      constants.OrderStatus
	StatusDesc  string
	IsProcessed bool
	LastUpdated time.Time

	// Errors collects per-field problems found while parsing.
	Errors []string
}

// Stop returns the stop for role.
func (r *OrderRecord) Stop(role constants.StopRole) *Stop {
	if role == constants.Pickup {
		return &r.Pickup
	}
	return &r.Dropoff
}

// AddError appends a per-field problem.
func (r *OrderRecord) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// HasErrors reports whether parsing left anything unresolved.
func (r *OrderRecord) HasErrors() bool { return len(r.Errors) > 0 }
