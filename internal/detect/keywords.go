// Package detect holds the pattern detectors: pure functions that read a
// MetadataBundle and return a candidate mapping with a confidence score.
package detect

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/orgmap/internal/model"
)

// Keywords lists, per concept, the words and phrases that mark a custom
// object or field as carrying that concept. Phrases match as whole token
// runs, so "aum" never matches "maximum".
var Keywords = map[model.Concept][]string{
	model.ConceptHousehold:  {"household", "family group", "client group", "family"},
	model.ConceptAUM:        {"aum", "assets under management", "managed assets", "total assets", "portfolio value"},
	model.ConceptFinancial:  {"financial account", "investment account", "brokerage account", "holding", "position"},
	model.ConceptCompliance: {"compliance", "kyc", "suitability", "regulatory review", "annual review", "audit"},
	model.ConceptPipeline:   {"pipeline", "prospect", "deal"},
}

// conceptOrder fixes the order concepts are tried in.
var conceptOrder = []model.Concept{
	model.ConceptHousehold,
	model.ConceptAUM,
	model.ConceptFinancial,
	model.ConceptCompliance,
	model.ConceptPipeline,
}

var (
	householdRe  = regexp.MustCompile(`(?i)household`)
	namespaceRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*__`)
	apiSuffixRe  = regexp.MustCompile(`__(c|mdt|r|x|e|b)$`)
	camelBoundRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)

	// An acronym run ends where the next capitalized word starts: "AUMTotal".
	acronymBoundRe = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
)

// IsHouseholdName reports whether a record type developer name or category
// value designates households.
func IsHouseholdName(s string) bool {
	return householdRe.MatchString(s)
}

// Tokens normalizes an API name or label into singular, case-folded word
// tokens. Namespace prefixes and API suffixes are dropped, camel case and
// underscores split words.
func Tokens(s string) []string {
	s = norm.NFKC.String(s)
	s = apiSuffixRe.ReplaceAllString(s, "")
	s = namespaceRe.ReplaceAllString(s, "")
	s = acronymBoundRe.ReplaceAllString(s, "$1 $2")
	s = camelBoundRe.ReplaceAllString(s, "$1 $2")
	// A Caser carries state, so each call gets its own.
	s = cases.Fold().String(s)

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		words[i] = inflection.Singular(w)
	}
	return words
}

// ContainsPhrase reports whether the tokens of phrase occur as a contiguous
// run in tokens.
func ContainsPhrase(tokens []string, phrase string) bool {
	want := Tokens(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
	for i := 0; i+len(want) <= len(tokens); i++ {
		match := true
		for j := range want {
			if tokens[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// MatchAny returns the first keyword of words found in any of the texts.
func MatchAny(words []string, texts ...string) (string, bool) {
	for _, text := range texts {
		if text == "" {
			continue
		}
		tokens := Tokens(text)
		for _, w := range words {
			if ContainsPhrase(tokens, w) {
				return w, true
			}
		}
	}
	return "", false
}

// MatchConcept returns the first concept whose keywords appear in the
// object's name or label.
func MatchConcept(name, label string) (model.Concept, string, bool) {
	for _, c := range conceptOrder {
		if kw, ok := MatchAny(Keywords[c], name, label); ok {
			return c, kw, true
		}
	}
	return "", "", false
}

// MatchCustomObjects scans custom objects in the catalog and returns up to
// limit keyword matches, ordered by object name.
func MatchCustomObjects(objects []model.ObjectInfo, limit int) []model.CustomObjectMatch {
	sorted := make([]model.ObjectInfo, 0, len(objects))
	for _, o := range objects {
		if o.Custom {
			sorted = append(sorted, o)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var out []model.CustomObjectMatch
	for _, o := range sorted {
		if limit > 0 && len(out) >= limit {
			break
		}
		concept, kw, ok := MatchConcept(o.Name, o.Label)
		if !ok {
			continue
		}
		out = append(out, model.CustomObjectMatch{
			Name:    o.Name,
			Label:   o.Label,
			Concept: concept,
			Keyword: kw,
		})
	}
	return out
}

// NamespacePrefix returns the managed-package prefix of an API name such as
// "FinServ__FinancialAccount__c", or "" for unpackaged names.
func NamespacePrefix(apiName string) string {
	trimmed := apiSuffixRe.ReplaceAllString(apiName, "")
	idx := strings.Index(trimmed, "__")
	if idx <= 0 {
		return ""
	}
	return trimmed[:idx]
}
