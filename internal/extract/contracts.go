package extract

import (
	"context"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

// DocumentExtractor turns an inbox file into text plus a best-effort table.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (entity.Document, error)
}

// AddressFallback recovers stop addresses from a document when the primary
// text was not good enough to resolve a location.
type AddressFallback interface {
	Fragments(ctx context.Context, doc entity.Document) (map[constants.StopRole]entity.AddressFragment, error)
}
