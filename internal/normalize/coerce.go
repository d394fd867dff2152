package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// currencyAliases maps symbols and locale spellings to ISO-3 codes.
var currencyAliases = map[string]string{
	"$":       "USD",
	"us$":     "USD",
	"usd":     "USD",
	"dollar":  "USD",
	"dollars": "USD",
	"¥":       "CNY",
	"rmb":     "CNY",
	"cny":     "CNY",
	"元":      "CNY",
	"人民币":  "CNY",
	"jpy":     "JPY",
	"円":      "JPY",
	"€":       "EUR",
	"eur":     "EUR",
	"euro":    "EUR",
	"euros":   "EUR",
	"£":       "GBP",
	"gbp":     "GBP",
	"pound":   "GBP",
	"pounds":  "GBP",
	"cad":     "CAD",
	"aud":     "AUD",
	"mxn":     "MXN",
	"inr":     "INR",
}

// decimalJunk strips currency symbols and grouping commas before parsing.
var decimalJunk = strings.NewReplacer("$", "", "¥", "", "€", "", "£", "", ",", "", " ", "")

// parseDecimal coerces v to a decimal quantized to scale. Returns nil and a
// warning message when the value cannot be parsed.
func parseDecimal(v any, scale int) (*float64, string) {
	switch n := v.(type) {
	case nil:
		return nil, ""
	case float64:
		return quantize(n, scale), ""
	case float32:
		return quantize(float64(n), scale), ""
	case int:
		return quantize(float64(n), scale), ""
	case int64:
		return quantize(float64(n), scale), ""
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, ""
		}
		s = decimalJunk.Replace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Sprintf("not a number: %q", n)
		}
		return quantize(f, scale), ""
	default:
		return nil, fmt.Sprintf("unsupported type %T", v)
	}
}

func quantize(f float64, scale int) *float64 {
	pow := math.Pow10(scale)
	q := math.Round(f*pow) / pow
	return &q
}

// parseInt coerces v to an integer. Grouping commas are accepted; floats
// are floored. Returns nil and a warning when unparseable.
func parseInt(v any) (*int, string) {
	switch n := v.(type) {
	case nil:
		return nil, ""
	case int:
		return &n, ""
	case int64:
		i := int(n)
		return &i, ""
	case float64:
		i := int(math.Floor(n))
		return &i, ""
	case float32:
		i := int(math.Floor(float64(n)))
		return &i, ""
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, ""
		}
		s = strings.ReplaceAll(s, ",", "")
		if i, err := strconv.Atoi(s); err == nil {
			return &i, ""
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			i := int(math.Floor(f))
			return &i, ""
		}
		return nil, fmt.Sprintf("not an integer: %q", n)
	default:
		return nil, fmt.Sprintf("unsupported type %T", v)
	}
}

// coerceCurrency maps a symbol or locale alias to an ISO-3 uppercase code.
// Unknown or empty input falls back to def. A non-empty whitelist nulls
// currencies outside the set.
func coerceCurrency(v any, def string, whitelist []string) string {
	code := def
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s != "" {
			if iso, ok := currencyAliases[strings.ToLower(s)]; ok {
				code = iso
			} else if len(s) == 3 {
				code = strings.ToUpper(s)
			}
		}
	}
	if len(whitelist) > 0 {
		for _, w := range whitelist {
			if strings.EqualFold(w, code) {
				return strings.ToUpper(code)
			}
		}
		return ""
	}
	return strings.ToUpper(code)
}

// coerceImageURL applies the image rules: list takes the first element, dict
// takes the first of {url, link, src}; anything not starting with http(s)
// becomes nil.
func coerceImageURL(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		return coerceImageURL(t[0])
	case []string:
		if len(t) == 0 {
			return nil
		}
		return coerceImageURL(t[0])
	case map[string]any:
		for _, k := range []string{"url", "link", "src"} {
			if u, ok := t[k]; ok {
				return coerceImageURL(u)
			}
		}
		return nil
	case string:
		if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
			return t
		}
		return nil
	default:
		return nil
	}
}

// coerceCategory picks the most specific (last) element from list-valued
// categories. Dict values are returned unmodified so they land in
// extended_data instead of the core column.
func coerceCategory(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case []any:
		if len(t) == 0 {
			return "", true
		}
		if s, ok := t[len(t)-1].(string); ok {
			return strings.TrimSpace(s), true
		}
		return fmt.Sprintf("%v", t[len(t)-1]), true
	case []string:
		if len(t) == 0 {
			return "", true
		}
		return strings.TrimSpace(t[len(t)-1]), true
	default:
		// Dicts and other shapes stay in extended_data.
		return "", false
	}
}

// stringValue renders a scalar raw value as a trimmed string.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
