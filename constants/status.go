package constants

// OrderStatus is the lifecycle status stored in the order_status column.
type OrderStatus string

// Stable values (store these exact strings in DB).
const (
	StatusParsed     OrderStatus = "parsed"     // inserted from a parsed document
	StatusDownloaded OrderStatus = "downloaded" // enriched with location codes and windows
	StatusCreated    OrderStatus = "created"    // order exists in the TMS
	StatusAutorated  OrderStatus = "autorated"  // TMS pricing computed
	StatusProcessed  OrderStatus = "processed"  // terminal
	StatusFlagged    OrderStatus = "flagged"    // needs operator review
)

var statusRank = map[OrderStatus]int{
	StatusParsed:     1,
	StatusDownloaded: 2,
	StatusCreated:    3,
	StatusAutorated:  4,
	StatusProcessed:  5,
}

// CanTransition reports whether a row may move from one status to another.
// Progression is forward-only; flagged is reachable from anything but processed,
// and a flagged row re-enters the lifecycle only through a new parse.
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFlagged {
		return true
	}
	if from == StatusFlagged {
		return to == StatusParsed || to == StatusDownloaded
	}
	fr, ok := statusRank[from]
	if !ok {
		return to == StatusParsed
	}
	tr, ok := statusRank[to]
	return ok && tr > fr
}

// IsTerminal reports whether the status can never change again.
func (s OrderStatus) IsTerminal() bool { return s == StatusProcessed }

func (s OrderStatus) String() string { return string(s) }
