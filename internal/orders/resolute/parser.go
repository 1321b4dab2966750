// Package resolute parses the labeled order forms used for paper-mill
// inbound and outbound loads.
package resolute

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

// ErrNoStops means the form has no SHIP FROM or SHIP TO block.
var ErrNoStops = errors.New("form has no ship-from/ship-to blocks")

var (
	reBOL       = regexp.MustCompile(`(?m)^\s*BOL\s*#:?\s*(\S+)`)
	rePO        = regexp.MustCompile(`(?m)^\s*PO\s*#:?\s*(\S.*?)\s*$`)
	reOrderNo   = regexp.MustCompile(`(?m)^\s*ORDER\s*#:?\s*(\S+)`)
	reOrderDate = regexp.MustCompile(`(?m)^\s*ORDER DATE:?\s*(\d\d?/\d\d?/\d{4})`)
	rePickup    = regexp.MustCompile(`(?m)^\s*PICKUP DATE:?\s*(\d\d?/\d\d?/\d{4})`)
	reDelivery  = regexp.MustCompile(`(?m)^\s*DELIVERY DATE:?\s*(\d\d?/\d\d?/\d{4})`)
	reCommodity = regexp.MustCompile(`(?m)^\s*COMMODITY:?\s*(\S.*?)\s*$`)
	reShipFrom  = regexp.MustCompile(`(?m)^\s*SHIP FROM:?\s*(.*)$`)
	reShipTo    = regexp.MustCompile(`(?m)^\s*SHIP TO:?\s*(.*)$`)
	// "123 MILL RD, CALHOUN, TN 37309"
	reStreetLine = regexp.MustCompile(`^(.+?),\s*([A-Za-z][A-Za-z .]*?),\s*([A-Z]{2})\s+(\d{5})(?:-\d{4})?$`)
)

// Parser reads one direction of the form. Inbound and outbound differ only
// in category and customer id.
type Parser struct {
	Category   constants.Category
	CustomerID string
	OpsUser    string
	logger     *slog.Logger
}

func NewParser(cat constants.Category, customerID, opsUser string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{Category: cat, CustomerID: customerID, OpsUser: opsUser, logger: logger}
}

func (p *Parser) Parse(doc entity.Document) (*entity.OrderRecord, error) {
	text := doc.Text
	from, okFrom := block(reShipFrom, text)
	to, okTo := block(reShipTo, text)
	if !okFrom || !okTo {
		p.logger.Error("resolute.parse.no_stops", "file", doc.Name, "category", p.Category)
		return nil, fmt.Errorf("%s: %w", doc.Name, ErrNoStops)
	}

	rec := &entity.OrderRecord{
		BOL:              match(reBOL, text),
		ConsRef:          match(rePO, text),
		CustOrderNo:      match(reOrderNo, text),
		CollectionMethod: "P",
		CustomerID:       p.CustomerID,
		RevenueCode:      "V",
		CommodityDesc:    strings.ToUpper(match(reCommodity, text)),
		Commodity:        "PAPER",
		OpsUser:          p.OpsUser,
		EquipmentTypeID:  "V",
		Category:         p.Category,
		OriginFile:       doc.Name,
	}
	if rec.BOL == "" {
		rec.BOL = doc.BOLHint
	}
	if rec.CommodityDesc == "" {
		rec.CommodityDesc = "PAPER PRODUCTS"
	}

	pickupDate := orders.NormalizeDate(match(rePickup, text))
	rec.OrderedDate = orders.NormalizeDate(match(reOrderDate, text))
	if rec.OrderedDate == "" {
		rec.OrderedDate = pickupDate
	}
	rec.Pickup = stop(constants.Pickup, from, true)
	rec.Pickup.Date = pickupDate
	rec.Dropoff = stop(constants.Dropoff, to, false)
	rec.Dropoff.Date = orders.AdjustSameDay(pickupDate, orders.NormalizeDate(match(reDelivery, text)))

	orders.Validate(rec)
	p.logger.Debug("resolute.parse.ok", "bol", rec.BOL, "category", p.Category, "errors", len(rec.Errors))
	return rec, nil
}

type addressBlock struct {
	company string
	street  string
}

// block returns the company named on the label line and the street line below it.
func block(re *regexp.Regexp, text string) (addressBlock, bool) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return addressBlock{}, false
	}
	b := addressBlock{company: strings.TrimSpace(text[loc[2]:loc[3]])}
	for _, l := range strings.Split(text[loc[1]:], "\n") {
		if l = strings.TrimSpace(l); l != "" {
			b.street = l
			break
		}
	}
	return b, true
}

// stop renders a block as "<street> <city> <ST>", adding the zip for pickups
// since pickup lookups key on it.
func stop(role constants.StopRole, b addressBlock, withZip bool) entity.Stop {
	s := entity.Stop{Role: role, Company: b.company}
	m := reStreetLine.FindStringSubmatch(b.street)
	if m == nil {
		return s
	}
	frag := entity.AddressFragment{
		Address: strings.TrimSpace(m[1]),
		City:    strings.ToUpper(strings.TrimSpace(m[2])),
		State:   m[3],
		Zip:     m[4],
	}
	s.Address = frag.Line(withZip)
	s.State = frag.State
	return s
}

func match(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
