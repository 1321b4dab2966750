package constants

// StopRole tags a stop on an order.
type StopRole string

const (
	Pickup  StopRole = "PU"
	Dropoff StopRole = "SO"
)

// ReferenceQualifier returns the cross-reference qualifier written for the role.
func (r StopRole) ReferenceQualifier() string {
	if r == Pickup {
		return "PU"
	}
	return "PO"
}

func (r StopRole) String() string { return string(r) }
