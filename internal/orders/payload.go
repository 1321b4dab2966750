package orders

import (
	"fmt"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/tms"
)

// PayloadConfig carries the values a payload needs beyond the record itself.
type PayloadConfig struct {
	CompanyID string
	TZOffset  string
	// IntraCustomer is the strategy's own customer id. Drop-offs of its
	// orders carry no terminal window.
	IntraCustomer string
}

// BuildPayload renders a stored, enriched record as a create-order body.
func BuildPayload(rec *entity.OrderRecord, cfg PayloadConfig) (*tms.OrderPayload, error) {
	ordered, err := FormatOrderedDate(rec.OrderedDate, cfg.TZOffset)
	if err != nil {
		return nil, err
	}
	stops := make([]tms.StopPayload, 0, 2)
	for _, s := range []entity.Stop{rec.Pickup, rec.Dropoff} {
		if s.Location == nil || s.Location.Code == "" {
			return nil, fmt.Errorf("%s stop has no location code", s.Role)
		}
		early, late, ok := SplitWindow(s.Window)
		if !ok {
			return nil, fmt.Errorf("%s stop has no schedule window", s.Role)
		}
		sp := tms.StopPayload{
			Type:             "stop",
			Name:             "stops",
			CompanyID:        cfg.CompanyID,
			LocationID:       s.Location.Code,
			SchedArriveEarly: early,
			SchedArriveLate:  late,
			StopType:         string(s.Role),
		}
		if s.Role == constants.Dropoff && cfg.IntraCustomer != "" && rec.CustomerID == cfg.IntraCustomer {
			sp.SchedArriveLate = ""
		}
		stops = append(stops, sp)
	}
	return &tms.OrderPayload{
		Type:             "orders",
		CompanyID:        cfg.CompanyID,
		BLNum:            rec.BOL,
		ConsigneeRefNo:   rec.ConsRef,
		CustOrderNo:      rec.CustOrderNo,
		CollectionMethod: rec.CollectionMethod,
		CustomerID:       rec.CustomerID,
		OrderedDate:      ordered,
		OrderedMethod:    "M",
		RevenueCodeID:    rec.RevenueCode,
		CommodityID:      rec.Commodity,
		Commodity:        rec.CommodityDesc,
		OperationsUser:   rec.OpsUser,
		EquipmentTypeID:  rec.EquipmentTypeID,
		Stops:            stops,
	}, nil
}
