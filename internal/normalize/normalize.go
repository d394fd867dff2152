// Package normalize converts arbitrary source mappings into the canonical
// product record. It is pure: no I/O, no suspension, and bad data never
// raises — problems are signaled through the validation report.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/model"
)

// asinPattern is the expected ASIN shape. Violations are warnings, not
// errors: marketplaces ship legacy identifiers that still resolve.
var asinPattern = regexp.MustCompile(`^B0[A-Z0-9]{8}$`)

// largePriceThreshold triggers a warning, not an error.
const largePriceThreshold = 100000.0

// Normalize projects a raw source mapping onto the canonical record shape.
// RawPayload keeps the input verbatim (key casing included); canonical core
// fields are coerced per the mapping rules; everything else is preserved in
// ExtendedData, unmapped keys under the "x_" prefix.
func Normalize(raw map[string]any, source model.DataSource, opts importcfg.Options) *model.ProductRecord {
	rec := &model.ProductRecord{
		RawPayload:        copyMap(raw),
		NormalizedPayload: make(map[string]any),
		ExtendedData:      make(map[string]any),
		DataSource:        source,
		AIStatus:          model.RecordAIPending,
	}

	warnings := make(map[string]string)
	currencySeen := false

	for key, value := range raw {
		canonical, isCore, ok := resolve(key, opts.ColumnAliases)
		if !ok {
			rec.ExtendedData[extendedPrefix+key] = value
			continue
		}
		if isCore {
			if canonical == "currency" && stringValue(value) != "" {
				currencySeen = true
			}
			applyCore(rec, canonical, value, opts, warnings)
			continue
		}
		applyExtended(rec, canonical, value)
	}

	// The default fills absent currencies only; a currency nulled by the
	// whitelist stays null.
	if rec.Currency == "" && !currencySeen {
		rec.Currency = coerceCurrency(nil, opts.DefaultCurrency, opts.CurrencyWhitelist)
		if rec.Currency != "" {
			rec.NormalizedPayload["currency"] = rec.Currency
		}
	}

	status, messages := Validate(rec)
	for f, m := range warnings {
		if _, exists := messages[f]; !exists {
			messages[f] = m
		}
	}
	if status == model.ValidationValid && len(messages) > 0 {
		status = model.ValidationWarning
	}
	rec.ValidationStatus = status
	rec.ValidationMessages = messages
	return rec
}

// applyCore coerces one core field. First non-empty value per canonical
// field wins; later aliased duplicates are ignored.
func applyCore(rec *model.ProductRecord, field string, value any, opts importcfg.Options, warnings map[string]string) {
	if _, seen := rec.NormalizedPayload[field]; seen {
		return
	}

	switch field {
	case "asin":
		asin := strings.ToUpper(stringValue(value))
		if asin == "" {
			return
		}
		if rec.ASIN == "" {
			if s := stringValue(value); s != asin {
				warnings["asin"] = "asin was not uppercase in source"
			}
			rec.ASIN = asin
			rec.NormalizedPayload["asin"] = asin
		}
	case "title":
		title := stringValue(value)
		if title == "" {
			return
		}
		rec.Title = title
		rec.NormalizedPayload["title"] = title
	case "category":
		cat, ok := coerceCategory(value)
		if !ok {
			// Dict-shaped category stays unmodified in extended_data.
			rec.ExtendedData["category"] = value
			return
		}
		if cat == "" {
			return
		}
		rec.Category = cat
		rec.NormalizedPayload["category"] = cat
	case "price":
		p, warn := parseDecimal(value, opts.PriceScale)
		if warn != "" {
			warnings["price"] = warn
			return
		}
		if p == nil {
			return
		}
		rec.Price = p
		rec.NormalizedPayload["price"] = *p
	case "currency":
		code := coerceCurrency(value, opts.DefaultCurrency, opts.CurrencyWhitelist)
		if code == "" {
			return
		}
		rec.Currency = code
		rec.NormalizedPayload["currency"] = code
	case "sales_rank":
		r, warn := parseInt(value)
		if warn != "" {
			warnings["sales_rank"] = warn
			return
		}
		if r == nil {
			return
		}
		rec.SalesRank = r
		rec.NormalizedPayload["sales_rank"] = *r
	case "reviews":
		r, warn := parseInt(value)
		if warn != "" {
			warnings["reviews"] = warn
			return
		}
		if r == nil {
			return
		}
		rec.Reviews = r
		rec.NormalizedPayload["reviews"] = *r
	case "rating":
		rt, warn := parseDecimal(value, opts.RatingScale)
		if warn != "" {
			warnings["rating"] = warn
			return
		}
		if rt == nil {
			return
		}
		rec.Rating = rt
		rec.NormalizedPayload["rating"] = *rt
	}
}

// applyExtended stores one extended field with shape-specific coercion.
func applyExtended(rec *model.ProductRecord, field string, value any) {
	switch field {
	case "image_url":
		if u := coerceImageURL(value); u != nil {
			rec.ExtendedData["image_url"] = u
		}
	case "bsr_category":
		// List-of-list structure is preserved as is.
		rec.ExtendedData["bsr_category"] = value
	default:
		if _, seen := rec.ExtendedData[field]; !seen {
			rec.ExtendedData[field] = value
		}
	}
}

// Validate checks a canonical record and returns its status plus per-field
// messages. Missing asin/title and out-of-range numerics are fatal; ASIN
// format and unusually large prices are warnings.
func Validate(rec *model.ProductRecord) (model.ValidationStatus, map[string]string) {
	messages := make(map[string]string)
	status := model.ValidationValid

	fatal := func(field, msg string) {
		messages[field] = msg
		status = model.ValidationError
	}
	warn := func(field, msg string) {
		if _, exists := messages[field]; !exists {
			messages[field] = msg
		}
		if status == model.ValidationValid {
			status = model.ValidationWarning
		}
	}

	if rec.ASIN == "" {
		fatal("asin", "asin is required")
	} else if !asinPattern.MatchString(rec.ASIN) {
		warn("asin", fmt.Sprintf("asin %q does not match the expected B0 pattern", rec.ASIN))
	}

	if rec.Title == "" {
		fatal("title", "title is required")
	}

	if rec.Price != nil {
		if *rec.Price < 0 {
			fatal("price", "price must be >= 0")
		} else if *rec.Price > largePriceThreshold {
			warn("price", fmt.Sprintf("price %.2f is unusually large", *rec.Price))
		}
	}
	if rec.Rating != nil && (*rec.Rating < 0 || *rec.Rating > 5) {
		fatal("rating", "rating must be within [0, 5]")
	}
	if rec.Reviews != nil && *rec.Reviews < 0 {
		fatal("reviews", "reviews must be >= 0")
	}

	return status, messages
}

// copyMap makes a shallow copy at each nesting level so the raw payload
// survives later mutation of the source map.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		if list, ok := v.([]any); ok {
			cp := make([]any, len(list))
			copy(cp, list)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
