package ocr

import (
	"errors"
	"fmt"
	"os/exec"
)

var (
	// ErrToolMissing means an extraction binary is not installed; every document would fail.
	ErrToolMissing = errors.New("extraction tool not available")
	ErrInvalidPDF  = errors.New("invalid pdf")
	ErrUnsupported = errors.New("unsupported extension")
)

func (e *Extractor) toolError(tool string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s: %v", ErrToolMissing, tool, err)
	}
	return fmt.Errorf("%s: %w", tool, err)
}
