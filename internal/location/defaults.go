package location

import (
	"github.com/joseph-ayodele/order-intake/constants"
)

// DefaultWindow is the coarse operating window stamped on a stop that has no
// resolved hours. It never clears a recorded failure.
func DefaultWindow(role constants.StopRole) (open, closeAt string) {
	if role == constants.Pickup {
		return "1201", "2359"
	}
	return "0000", "2359"
}
