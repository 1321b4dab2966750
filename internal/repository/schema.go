package repository

import (
	"context"
	"fmt"
	"strings"

	entsql "entgo.io/ent/dialect/sql"
)

// Tables names the tables the gateways use.
type Tables struct {
	Orders          string
	Locations       string
	RemoteOrders    string
	ReferenceNumber string
}

func DefaultTables() Tables {
	return Tables{
		Orders:          "order_entry_dev",
		Locations:       "location",
		RemoteOrders:    "orders",
		ReferenceNumber: "reference_number",
	}
}

var weekdayColumns = func() string {
	var b strings.Builder
	for _, d := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		fmt.Fprintf(&b, "\t%s_open TEXT,\n\t%s_close TEXT,\n", d, d)
	}
	return b.String()
}()

// CreateSchema creates the tables for a local or test database. Production
// tables are owned by the TMS and the operations database.
func CreateSchema(ctx context.Context, db *DB, t Tables) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	bol TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	cons_ref TEXT NOT NULL DEFAULT '',
	cust_order_no TEXT NOT NULL DEFAULT '',
	collection_method TEXT NOT NULL DEFAULT '',
	customer_id TEXT NOT NULL DEFAULT '',
	ordered_date TEXT NOT NULL DEFAULT '',
	revenue_code TEXT NOT NULL DEFAULT '',
	commodity_desc TEXT NOT NULL DEFAULT '',
	commodity TEXT NOT NULL DEFAULT '',
	ops_user TEXT NOT NULL DEFAULT '',
	equipment_type_id TEXT NOT NULL DEFAULT '',
	pickup_addr TEXT NOT NULL DEFAULT '',
	pickup_company TEXT NOT NULL DEFAULT '',
	pickup_loc_code TEXT NOT NULL DEFAULT '',
	pickup_state TEXT NOT NULL DEFAULT '',
	pickup_date TEXT NOT NULL DEFAULT '',
	pickup_window TEXT NOT NULL DEFAULT '',
	cons_addr TEXT NOT NULL DEFAULT '',
	cons_company TEXT NOT NULL DEFAULT '',
	cons_loc_code TEXT NOT NULL DEFAULT '',
	cons_state TEXT NOT NULL DEFAULT '',
	consignee_date TEXT NOT NULL DEFAULT '',
	consignee_window TEXT NOT NULL DEFAULT '',
	order_status TEXT NOT NULL,
	is_processed INTEGER NOT NULL DEFAULT 0,
	doc_to_attach TEXT NOT NULL DEFAULT '',
	status_desc TEXT NOT NULL DEFAULT '',
	processed_date TIMESTAMP,
	last_updated TIMESTAMP
)`, t.Orders),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	address1 TEXT NOT NULL DEFAULT '',
	city_name TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	zip_code TEXT NOT NULL DEFAULT '',
%s	is_active TEXT NOT NULL DEFAULT 'Y'
)`, t.Locations, weekdayColumns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	blnum TEXT NOT NULL,
	shipper_stop_id TEXT NOT NULL DEFAULT '',
	consignee_stop_id TEXT NOT NULL DEFAULT ''
)`, t.RemoteOrders),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	element_id INTEGER NOT NULL,
	partner_id TEXT NOT NULL,
	reference_number TEXT NOT NULL,
	reference_qual TEXT NOT NULL,
	stop_id TEXT NOT NULL,
	version TEXT NOT NULL,
	send_to_driver TEXT NOT NULL
)`, t.ReferenceNumber),
	}
	for _, stmt := range stmts {
		var res entsql.Result
		if err := db.Driver.Exec(ctx, stmt, []any{}, &res); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
