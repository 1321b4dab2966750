package constants

import (
	"fmt"
	"strings"
)

// Category is an order category tag; each one maps to a parsing strategy.
type Category string

const (
	Grain            Category = "grain"
	ResoluteInbound  Category = "resolute_inbound"
	ResoluteOutbound Category = "resolute_outbound"
)

// SelectAll is the selector wildcard accepted by the trigger.
const SelectAll = "all"

var allCategories = []Category{
	Grain,
	ResoluteInbound,
	ResoluteOutbound,
}

// AllCategories returns the categories in processing order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize matches input against the known categories, ignoring case and whitespace.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, cat := range allCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}
	return "", false
}

// InvalidSelectorError names the first selector entry that is not a category.
type InvalidSelectorError struct {
	Value string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("Invalid order_type: '%s'. Valid options are: %s.", e.Value, strings.Join(AsStringSlice(), ", "))
}

// ParseSelector parses a comma-separated category selector. An empty selector
// or any "all" entry selects every category. The result keeps processing order
// and holds no duplicates.
func ParseSelector(selector string) ([]Category, error) {
	if strings.TrimSpace(selector) == "" {
		return AllCategories(), nil
	}
	want := map[Category]bool{}
	all := false
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, SelectAll) {
			all = true
			continue
		}
		cat, ok := Canonicalize(part)
		if !ok {
			return nil, &InvalidSelectorError{Value: part}
		}
		want[cat] = true
	}
	if all {
		return AllCategories(), nil
	}
	var out []Category
	for _, cat := range allCategories {
		if want[cat] {
			out = append(out, cat)
		}
	}
	return out, nil
}
