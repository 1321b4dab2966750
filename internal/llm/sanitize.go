package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reState = regexp.MustCompile(`^[A-Z]{2}$`)
	reZip   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// SanitizeOptional drops a stop's state or zip when the model returned
// something that is not one, so the rest of the reply can still validate.
// It returns the cleaned document and the dotted paths it dropped.
func SanitizeOptional(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}
	var dropped []string
	for _, stop := range []string{"pickup", "ship_to"} {
		addr, ok := m[stop].(map[string]any)
		if !ok {
			continue
		}
		for key, re := range map[string]*regexp.Regexp{"state": reState, "zip": reZip} {
			v, ok := addr[key].(string)
			if !ok {
				if _, present := addr[key]; present {
					addr[key] = ""
					dropped = append(dropped, stop+"."+key)
				}
				continue
			}
			s := strings.ToUpper(strings.TrimSpace(v))
			if s != "" && !re.MatchString(s) {
				s = ""
				dropped = append(dropped, stop+"."+key)
			}
			addr[key] = s
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}
