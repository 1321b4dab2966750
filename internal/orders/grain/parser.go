// Package grain parses the bill-of-lading layout used by the grain mill.
package grain

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/orders"
)

// ErrTableShape means the document has no pickup/ship-to row to read stops from.
var ErrTableShape = errors.New("unrecoverable table shape")

const (
	sevigAddress     = "5101 Sevig Street MUSCATINE IA 52761"
	sevigCorrected   = "4815 55TH MUSCATINE IA 52761"
	minutemanPattern = "10 MINUTEMAN WAY"
	// MinutemanError is recorded for drop-offs the TMS workflow cannot take yet.
	MinutemanError = "CONBMA load, not working currently in API process"
)

var (
	reOrderedDate  = regexp.MustCompile(`Date: (\d\d?/\d\d?/\d{4})`)
	reCustomerPO   = regexp.MustCompile(`CUSTOMER PO: (\S.*)`)
	reCustOrder    = regexp.MustCompile(`\bS\d+`)
	reBOL          = regexp.MustCompile(`\dLID\d+`)
	reShipLabel    = regexp.MustCompile(`SHIP DATE:?\s*(\d\d?/\d\d?/\d{4})`)
	reDeliverLabel = regexp.MustCompile(`DELIVERY DATE:?\s*(\d\d?/\d\d?/\d{4})`)
	reShipDate     = regexp.MustCompile(`(\d{2}/\d\d/\d{4}) `)
	reDeliveryDate = regexp.MustCompile(`(\d{2}/\d\d/\d{4})\nC`)
	rePickup       = regexp.MustCompile(`PICK UP (.*?) SHIP DATE`)
	rePickupTail   = regexp.MustCompile(`PICK UP (.*)`)
	reCompany      = regexp.MustCompile(`SHIP TO (\w+)`)
	reCityLine     = regexp.MustCompile(`\b([A-Za-z]+(?:\s[A-Za-z]+)?)\s([A-Z]{2})\s(\d{5})`)
)

// Parser turns an extracted grain document into an OrderRecord.
type Parser struct {
	CustomerID string
	OpsUser    string
	logger     *slog.Logger
}

func NewParser(customerID, opsUser string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{CustomerID: customerID, OpsUser: opsUser, logger: logger}
}

// Parse fills every field it can and records the rest on rec.Errors. It only
// fails when the document has no stop table at all.
func (p *Parser) Parse(doc entity.Document) (*entity.OrderRecord, error) {
	row := stopRow(doc.Table)
	if row == nil {
		p.logger.Error("grain.parse.no_stop_table", "file", doc.Name)
		return nil, fmt.Errorf("%s: %w", doc.Name, ErrTableShape)
	}
	text := doc.Text

	rec := &entity.OrderRecord{
		BOL:              firstMatch(reBOL, text, 0),
		ConsRef:          strings.TrimSpace(firstMatch(reCustomerPO, text, 1)),
		CustOrderNo:      firstMatch(reCustOrder, text, 0),
		CollectionMethod: "P",
		CustomerID:       p.CustomerID,
		OrderedDate:      orders.NormalizeDate(firstMatch(reOrderedDate, text, 1)),
		RevenueCode:      "V",
		CommodityDesc:    "FOOD INGREDIENTS",
		Commodity:        "FOOD-ING",
		OpsUser:          p.OpsUser,
		EquipmentTypeID:  "V",
		Category:         constants.Grain,
		OriginFile:       doc.Name,
	}
	if rec.BOL == "" {
		rec.BOL = doc.BOLHint
	}

	shipDate := firstOf(text, reShipLabel, reShipDate)
	deliveryDate := firstOf(text, reDeliverLabel, reDeliveryDate)

	pickup := strings.ReplaceAll(firstOf(flatten(row[0]), rePickup, rePickupTail), ".", "")
	if pickup == sevigAddress {
		pickup = sevigCorrected
	}
	rec.Pickup = entity.Stop{
		Role:    constants.Pickup,
		Address: strings.TrimSpace(pickup),
		State:   stateOf(pickup, 2),
		Date:    orders.NormalizeDate(shipDate),
	}

	rec.Dropoff = parseShipTo(row[1])
	rec.Dropoff.Date = orders.AdjustSameDay(rec.Pickup.Date, orders.NormalizeDate(deliveryDate))

	if strings.Contains(rec.Dropoff.Address, minutemanPattern) {
		p.logger.Error("grain.parse.rejected_address", "bol", rec.BOL, "address", rec.Dropoff.Address)
		rec.AddError(MinutemanError)
	}
	orders.Validate(rec)

	p.logger.Debug("grain.parse.ok", "bol", rec.BOL, "pickup", rec.Pickup.Address, "dropoff", rec.Dropoff.Address, "errors", len(rec.Errors))
	return rec, nil
}

func stopRow(table [][]string) []string {
	for _, row := range table {
		if len(row) >= 2 && strings.HasPrefix(strings.TrimSpace(row[0]), "PICK UP") {
			return row
		}
	}
	return nil
}

// parseShipTo reads "SHIP TO <COMPANY>", optional care-of lines, the street
// and the "CITY ST ZIP" line from the ship-to cell.
func parseShipTo(cell string) entity.Stop {
	stop := entity.Stop{Role: constants.Dropoff, Company: firstMatch(reCompany, cell, 1)}

	var lines []string
	for _, l := range strings.Split(cell, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(strings.ToUpper(l), "C/O") {
			continue
		}
		lines = append(lines, l)
	}
	for i, l := range lines {
		m := reCityLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		city, state := m[1], m[2]
		address := ""
		if i > 0 && !strings.HasPrefix(lines[i-1], "SHIP TO") {
			address = lines[i-1]
		}
		stop.State = state
		if address != "" {
			stop.Address = address + " " + city + " " + state
		}
		break
	}
	return stop
}

func firstMatch(re *regexp.Regexp, s string, group int) string {
	m := re.FindStringSubmatch(s)
	if m == nil || len(m) <= group {
		return ""
	}
	return m[group]
}

func firstOf(s string, res ...*regexp.Regexp) string {
	for _, re := range res {
		if v := firstMatch(re, s, 1); v != "" {
			return v
		}
	}
	return ""
}

// flatten joins a multi-line cell into one line.
func flatten(cell string) string {
	return strings.Join(strings.Fields(cell), " ")
}

// stateOf returns the token fromEnd places from the end of an address.
func stateOf(addr string, fromEnd int) string {
	toks := strings.Fields(addr)
	if len(toks) < fromEnd {
		return ""
	}
	return toks[len(toks)-fromEnd]
}
