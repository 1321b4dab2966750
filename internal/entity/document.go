package entity

import "strings"

// Document is an inbox file after text and table extraction.
type Document struct {
	Path    string
	Name    string
	BOLHint string // file stem, used when the text carries no BOL
	Text    string
	Table   [][]string
	Pages   int
}

// AddressFragment is an address block recovered by OCR for one stop.
type AddressFragment struct {
	Company string
	Address string
	City    string
	State   string
	Zip     string
}

// Empty reports whether nothing usable was recovered.
func (f AddressFragment) Empty() bool {
	return f.Address == "" && f.City == "" && f.State == ""
}

// Line renders the fragment the way parsed stop addresses are written:
// "<street> <city> <ST> <zip>", skipping missing parts.
func (f AddressFragment) Line(withZip bool) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{f.Address, f.City, f.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if withZip && f.Zip != "" {
		parts = append(parts, f.Zip)
	}
	return strings.Join(parts, " ")
}
