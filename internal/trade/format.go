package trade

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedTemplate is returned for unbalanced braces or unsupported
// format specs.
var ErrMalformedTemplate = errors.New("malformed template")

// UnknownPlaceholderError is returned when a template names a placeholder
// that does not exist.
type UnknownPlaceholderError struct {
	Name string
}

func (e *UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("unknown placeholder {%s}", e.Name)
}

var itemFields = []string{
	"id",
	"serial_number",
	"asset_id",
	"name",
	"recent_average_price",
	"original_price",
	"asset_stock",
	"roli_value",
}

// Placeholders returns every placeholder value for view.
func Placeholders(view *TradeView) map[string]string {
	values := make(map[string]string, 2*(6+MaxItems*len(itemFields))+2)

	values["trade_id"] = strconv.FormatInt(view.TradeID, 10)
	values["trade_status"] = string(view.Status)

	for _, name := range []SideName{Give, Take} {
		side := view.Side(name)
		prefix := string(name) + "_"

		values[prefix+"rap"] = strconv.FormatInt(side.RAP(), 10)
		values[prefix+"roli_value"] = strconv.FormatInt(side.Value(view.IncludeUnvaluedInTotal), 10)
		values[prefix+"robux"] = strconv.FormatInt(side.Robux, 10)
		values[prefix+"user_id"] = strconv.FormatInt(side.User.ID, 10)
		values[prefix+"user_name"] = side.User.Name
		values[prefix+"user_display_name"] = side.User.DisplayName

		for slot := 0; slot < MaxItems; slot++ {
			itemPrefix := fmt.Sprintf("%sitem%d_", prefix, slot+1)
			for field, val := range itemValues(side.Items[slot]) {
				values[itemPrefix+field] = val
			}
		}
	}

	return values
}

func itemValues(it *Item) map[string]string {
	if it == nil {
		return map[string]string{
			"id":                   "",
			"serial_number":        "",
			"asset_id":             "",
			"name":                 "",
			"recent_average_price": "0",
			"original_price":       "",
			"asset_stock":          "",
			"roli_value":           "0",
		}
	}

	return map[string]string{
		"id":                   strconv.FormatInt(it.ID, 10),
		"serial_number":        optional(it.SerialNumber),
		"asset_id":             strconv.FormatInt(it.AssetID, 10),
		"name":                 it.Name,
		"recent_average_price": strconv.FormatInt(it.RecentAveragePrice, 10),
		"original_price":       optional(it.OriginalPrice),
		"asset_stock":          optional(it.AssetStock),
		"roli_value":           strconv.FormatInt(it.ExternalValue, 10),
	}
}

func optional(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// Format renders template against view.
func Format(template string, view *TradeView) (string, error) {
	return Render(template, Placeholders(view))
}

// Render substitutes {name} and {name:,} placeholders from values. Doubled
// braces are literal braces.
func Render(template string, values map[string]string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(template))

	for i := 0; i < len(template); {
		switch c := template[i]; c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				sb.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformedTemplate, i)
			}
			field := template[i+1 : i+1+end]
			if strings.ContainsRune(field, '{') {
				return "", fmt.Errorf("%w: nested '{' at offset %d", ErrMalformedTemplate, i)
			}

			name, spec, _ := strings.Cut(field, ":")
			val, ok := values[name]
			if !ok {
				return "", &UnknownPlaceholderError{Name: name}
			}
			val, err := applySpec(val, spec)
			if err != nil {
				return "", err
			}
			sb.WriteString(val)
			i += end + 2

		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				sb.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)

		default:
			sb.WriteByte(c)
			i++
		}
	}

	return sb.String(), nil
}

// applySpec supports the empty spec and "," (thousands grouping). Values
// that are not integers are left as they are.
func applySpec(val, spec string) (string, error) {
	switch spec {
	case "":
		return val, nil
	case ",":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return val, nil
		}
		return groupThousands(n), nil
	default:
		return "", fmt.Errorf("%w: unsupported format spec %q", ErrMalformedTemplate, spec)
	}
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}

	if len(s) <= 3 {
		return sign + s
	}

	var sb strings.Builder
	head := len(s) % 3
	if head > 0 {
		sb.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sign + sb.String()
}
