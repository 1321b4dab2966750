package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

var (
	rePickupBlock  = regexp.MustCompile(`(?s)PICK UP\s+(.*?)(?:SHIP DATE|SHIP TO|$)`)
	reShipToBlock  = regexp.MustCompile(`(?s)SHIP TO\s+(.*?)(?:CARRIER|NOTES|$)`)
	reCityStateZip = regexp.MustCompile(`([A-Za-z\s\.]+)\s+([A-Z]{2})\s+(\d{5}(?:-\d{4})?)`)
	reLooseState   = regexp.MustCompile(`\s([A-Z]{2})\s`)
	reZip          = regexp.MustCompile(`\d{5}(?:-\d{4})?`)
)

// TesseractFallback re-reads page one of a document through pdftoppm and
// tesseract and pulls the pickup and ship-to address blocks out of the result.
type TesseractFallback struct {
	e *Extractor
}

func NewTesseractFallback(e *Extractor) *TesseractFallback {
	return &TesseractFallback{e: e}
}

func (f *TesseractFallback) Fragments(ctx context.Context, doc entity.Document) (map[constants.StopRole]entity.AddressFragment, error) {
	text, _, _, err := f.e.ocrPages(ctx, doc.Path, true)
	if err != nil {
		f.e.logger.Warn("ocr fallback failed", "path", doc.Path, "error", err)
		return nil, fmt.Errorf("ocr fallback: %w", err)
	}
	frags := ParseAddressFragments(text)
	f.e.logger.Info("ocr fallback ok", "path", doc.Path, "roles", len(frags))
	return frags, nil
}

// ParseAddressFragments finds the pickup and ship-to blocks in free OCR text.
func ParseAddressFragments(text string) map[constants.StopRole]entity.AddressFragment {
	out := make(map[constants.StopRole]entity.AddressFragment)
	if m := rePickupBlock.FindStringSubmatch(text); m != nil {
		if frag := parseAddress(strings.TrimSpace(m[1])); !frag.Empty() {
			out[constants.Pickup] = frag
		}
	}
	if m := reShipToBlock.FindStringSubmatch(text); m != nil {
		body := strings.TrimSpace(m[1])
		company := ""
		if i := strings.IndexByte(body, '\n'); i > 0 {
			company, body = strings.TrimSpace(body[:i]), body[i+1:]
		}
		frag := parseAddress(body)
		frag.Company = company
		if !frag.Empty() {
			out[constants.Dropoff] = frag
		}
	}
	return out
}

func parseAddress(text string) entity.AddressFragment {
	var frag entity.AddressFragment
	if loc := reCityStateZip.FindStringSubmatchIndex(text); loc != nil {
		city := text[loc[2]:loc[3]]
		prefix := text[:loc[0]]
		// The city is the last line of the match; earlier lines belong to the street.
		if i := strings.LastIndexByte(city, '\n'); i >= 0 {
			prefix += city[:i]
			city = city[i+1:]
		}
		frag.City = strings.TrimSpace(city)
		frag.State = text[loc[4]:loc[5]]
		frag.Zip = text[loc[6]:loc[7]]
		frag.Address = lastLine(prefix)
		return frag
	}
	if m := reLooseState.FindStringSubmatchIndex(text); m != nil {
		frag.State = text[m[2]:m[3]]
		before := strings.Split(text[:m[0]], "\n")
		frag.City = strings.TrimSpace(before[len(before)-1])
		if len(before) > 1 {
			frag.Address = lastLine(strings.Join(before[:len(before)-1], "\n"))
		}
		frag.Zip = reZip.FindString(text[m[1]:])
	}
	return frag
}

// lastLine keeps the street line nearest the city, dropping care-of lines.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if l == "" || strings.HasPrefix(strings.ToUpper(l), "C/O") {
			continue
		}
		return l
	}
	return ""
}
