// Package importcfg holds the declarative import mapping: which worksheet to
// read, which fields are required, extra column aliases, and numeric scales.
// The startup configuration is loaded once; call-site overrides shallow-merge
// into a fresh value per driver invocation.
package importcfg

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MissingPolicy controls what happens when a row lacks a required field.
type MissingPolicy string

const (
	MissingSkip  MissingPolicy = "skip"
	MissingAbort MissingPolicy = "abort"
)

// Options is the effective import configuration for one driver invocation.
type Options struct {
	SheetName         string            `yaml:"sheet_name"`
	RequiredFields    []string          `yaml:"required_fields"`
	OnMissingRequired MissingPolicy     `yaml:"on_missing_required"`
	ColumnAliases     map[string]string `yaml:"column_aliases"`
	PriceScale        int               `yaml:"price_scale"`
	RatingScale       int               `yaml:"rating_scale"`
	DefaultCurrency   string            `yaml:"default_currency"`
	CurrencyWhitelist []string          `yaml:"currency_whitelist"`
}

// Default returns the baseline options applied when no mapping file exists.
func Default() Options {
	return Options{
		SheetName:         "产品详情",
		RequiredFields:    []string{"asin", "title", "currency"},
		OnMissingRequired: MissingSkip,
		PriceScale:        2,
		RatingScale:       2,
		DefaultCurrency:   "USD",
	}
}

// mappingFile mirrors the yaml layout of the on-disk mapping file.
type mappingFile struct {
	SheetName         string            `yaml:"sheet_name"`
	RequiredFields    []string          `yaml:"required_fields"`
	OnMissingRequired string            `yaml:"on_missing_required"`
	ColumnAliases     map[string]string `yaml:"column_aliases"`
	Normalization     struct {
		PriceScale        int      `yaml:"price_scale"`
		RatingScale       int      `yaml:"rating_scale"`
		DefaultCurrency   string   `yaml:"default_currency"`
		CurrencyWhitelist []string `yaml:"currency_whitelist"`
	} `yaml:"normalization"`
}

// LoadFile reads a yaml mapping file and overlays it onto the defaults.
// A missing path returns plain defaults.
func LoadFile(path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, eris.Wrapf(err, "importcfg: read %s", path)
	}

	var mf mappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return opts, eris.Wrapf(err, "importcfg: parse %s", path)
	}

	if mf.SheetName != "" {
		opts.SheetName = mf.SheetName
	}
	if len(mf.RequiredFields) > 0 {
		opts.RequiredFields = mf.RequiredFields
	}
	if mf.OnMissingRequired != "" {
		opts.OnMissingRequired = MissingPolicy(mf.OnMissingRequired)
	}
	if len(mf.ColumnAliases) > 0 {
		opts.ColumnAliases = mf.ColumnAliases
	}
	if mf.Normalization.PriceScale > 0 {
		opts.PriceScale = mf.Normalization.PriceScale
	}
	if mf.Normalization.RatingScale > 0 {
		opts.RatingScale = mf.Normalization.RatingScale
	}
	if mf.Normalization.DefaultCurrency != "" {
		opts.DefaultCurrency = mf.Normalization.DefaultCurrency
	}
	if len(mf.Normalization.CurrencyWhitelist) > 0 {
		opts.CurrencyWhitelist = mf.Normalization.CurrencyWhitelist
	}
	return opts, nil
}

// Overrides are the call-site knobs a single upload may adjust.
type Overrides struct {
	SheetName         string
	OnMissingRequired MissingPolicy
	ColumnAliases     map[string]string
}

// Merge returns a fresh Options value with overrides shallow-merged over o.
// The receiver is never mutated.
func (o Options) Merge(ov Overrides) Options {
	out := o

	// Copy maps so the startup config stays untouched.
	out.ColumnAliases = make(map[string]string, len(o.ColumnAliases)+len(ov.ColumnAliases))
	for k, v := range o.ColumnAliases {
		out.ColumnAliases[k] = v
	}
	for k, v := range ov.ColumnAliases {
		out.ColumnAliases[k] = v
	}

	if ov.SheetName != "" {
		out.SheetName = ov.SheetName
	}
	if ov.OnMissingRequired != "" {
		out.OnMissingRequired = ov.OnMissingRequired
	}
	return out
}
