package location

import (
	"strings"

	"github.com/joseph-ayodele/order-intake/constants"
)

// Overrides maps a normalized stop address to a facility code, per role.
// They cover addresses the structured lookup is known to miss.
type Overrides map[constants.StopRole]map[string]string

func DefaultOverrides() Overrides {
	return Overrides{
		constants.Pickup: {
			"5101 SEVIG STREET MUSCATINE IA 52761": "KENMIA",
			"4815 55TH MUSCATINE IA 52761":         "KENMIA",
		},
		constants.Dropoff: {
			"US PL FORT WAYNE FORT WAYNE IN":         "EGIFIN",
			"CUSTOMER PO: 434759 EAST POINT GA":      "BREEGA",
			"CUSTOMER PO: 24016434 LAUREL MD":        "NESLMD",
			"445 HURRICANE TRAIL DACULA GA":          "PUBDGA",
			"1500 SUCKLE HWY PENNSAUKEN TOWNSHIP NJ": "BARPNJ",
		},
	}
}

// Lookup normalizes address and looks it up for role.
func (o Overrides) Lookup(role constants.StopRole, address string) (string, bool) {
	table, ok := o[role]
	if !ok {
		return "", false
	}
	key := Normalize(address)
	for k, code := range table {
		if Normalize(k) == key {
			return code, true
		}
	}
	return "", false
}

// Normalize upper-cases an address and collapses its whitespace.
func Normalize(address string) string {
	return strings.ToUpper(strings.Join(strings.Fields(address), " "))
}
