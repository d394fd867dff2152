package importer

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sellerdata/ingest-cli/internal/apperr"
)

// InputKind classifies a recognized API-import input.
type InputKind string

const (
	InputCategory InputKind = "category"
	InputASIN     InputKind = "asin"
)

var (
	categoryIDPattern = regexp.MustCompile(`^\d{10}$`)
	asinInputPattern  = regexp.MustCompile(`^B0[A-Z0-9]{8}$`)
	dpPathPattern     = regexp.MustCompile(`(?i)/dp/(B0[A-Z0-9]{8})`)
	pathDigitsPattern = regexp.MustCompile(`/(\d{4,})(?:/|$)`)
)

// RecognizeInput classifies an API-import input. explicitKind short-circuits
// recognition when the caller already knows what it sent. Rules apply in
// order: ten digits → category; ASIN literal; /dp/ URL → ASIN; node query or
// best-seller path digits → category.
func RecognizeInput(input string, explicitKind InputKind) (InputKind, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", apperr.New(apperr.CodeUnrecognizedInput, "input is empty")
	}

	switch explicitKind {
	case InputCategory, InputASIN:
		return explicitKind, input, nil
	}

	if categoryIDPattern.MatchString(input) {
		return InputCategory, input, nil
	}
	if asinInputPattern.MatchString(strings.ToUpper(input)) {
		return InputASIN, strings.ToUpper(input), nil
	}
	if m := dpPathPattern.FindStringSubmatch(input); m != nil {
		return InputASIN, strings.ToUpper(m[1]), nil
	}
	if nodeID := categoryFromURL(input); nodeID != "" {
		return InputCategory, nodeID, nil
	}

	return "", "", apperr.Newf(apperr.CodeUnrecognizedInput, "cannot interpret input %q", input)
}

// categoryFromURL pulls a node id from ?node= or a best-seller style path
// segment of at least four digits.
func categoryFromURL(input string) string {
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	if node := u.Query().Get("node"); node != "" && isDigits(node) {
		return node
	}
	if m := pathDigitsPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
