package orders

import (
	"strings"

	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

// Validate appends one error per missing or malformed required field.
func Validate(rec *entity.OrderRecord) {
	for _, ve := range common.ValidateStruct(rec) {
		rec.AddError(fieldLabel(ve.Field) + " " + ve.Message)
	}
}

// fieldLabel turns "OrderRecord.Pickup.Date" into "Pickup.Date".
func fieldLabel(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
