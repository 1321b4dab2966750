package orders

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is how every parsed stop and order date is written.
const DateLayout = "01/02/2006"

// AdjustSameDay moves delivery one calendar day past pickup when the two are
// written identically. Any other pair is returned unchanged.
func AdjustSameDay(pickup, delivery string) string {
	if strings.TrimSpace(pickup) == "" || strings.TrimSpace(pickup) != strings.TrimSpace(delivery) {
		return delivery
	}
	d, err := time.Parse(DateLayout, strings.TrimSpace(delivery))
	if err != nil {
		return delivery
	}
	return d.AddDate(0, 0, 1).Format(DateLayout)
}

// NormalizeDate rewrites M/D/YYYY as MM/DD/YYYY. Unparseable input is returned trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("1/2/2006", s); err == nil {
		return t.Format(DateLayout)
	}
	return s
}

// FormatOrderedDate renders an order date as a TMS stamp at midnight.
func FormatOrderedDate(date, tz string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("ordered date %q: %w", date, err)
	}
	return t.Format("20060102") + "000000" + tz, nil
}

// FormatWindow renders "<early>|<late>" schedule stamps for a stop date and
// HHMM open/close times.
func FormatWindow(date, open, closeAt, tz string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("stop date %q: %w", date, err)
	}
	for _, hm := range []string{open, closeAt} {
		if _, err := time.Parse("1504", hm); err != nil {
			return "", fmt.Errorf("window time %q: %w", hm, err)
		}
	}
	day := t.Format("20060102")
	return day + open + "00" + tz + "|" + day + closeAt + "00" + tz, nil
}

// SplitWindow returns the early and late stamps of a window.
func SplitWindow(w string) (early, late string, ok bool) {
	early, late, ok = strings.Cut(w, "|")
	return early, late, ok && early != "" && late != ""
}
