package emarsys

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// timestampLayouts are the date formats the API is known to return, tried in order
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CanonicalTimestamp parses a provider date and formats it as RFC 3339,
// keeping fractional seconds and the source offset. Values without a zone
// are taken as UTC. Applying it to its own output returns the same string.
func CanonicalTimestamp(value string) (string, error) {
	s := strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.RFC3339Nano), nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeData, "unparseable date %q", value)
}

// BaseTransform copies obj, turning empty strings into nil and parsing the
// listed date fields into canonical timestamps.
func BaseTransform(obj core.Record, dateFields ...string) (core.Record, error) {
	dates := make(map[string]bool, len(dateFields))
	for _, f := range dateFields {
		dates[f] = true
	}

	out := make(core.Record, len(obj))
	for field, value := range obj {
		v, err := transformValue(value, dates[field])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to transform field").
				WithDetail("field", field)
		}
		out[field] = v
	}
	return out, nil
}

func transformValue(value interface{}, isDate bool) (interface{}, error) {
	if s, ok := value.(string); ok && s == "" {
		return nil, nil
	}
	if !isDate || value == nil {
		return value, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "date value has type %T", value)
	}
	return CanonicalTimestamp(s)
}

// idString renders a JSON id, which the API sends as number or string
func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}
