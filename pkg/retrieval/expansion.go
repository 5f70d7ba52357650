package retrieval

import "strings"

// maxExpansions is the default cap on the number of query variants
// produced for one query, original included.
const maxExpansions = 4

// ExpandQuery produces thesaurus-based variants of a query, at most max
// of them including the original. A non-positive max uses the default
// cap. The original query is always the first element; variants
// substitute one known term with each of its synonyms, preserving the
// surrounding text's casing. Duplicates are dropped.
func ExpandQuery(query string, max int) []string {
	if max <= 0 {
		max = maxExpansions
	}
	variants := []string{query}
	seen := map[string]struct{}{strings.ToLower(query): {}}

	for _, token := range strings.Fields(query) {
		key := strings.ToLower(strings.Trim(token, ".,;:!?()"))
		for _, synonym := range synonymsFor(key) {
			if len(variants) >= max {
				return variants
			}
			variant := replaceToken(query, token, synonym)
			lower := strings.ToLower(variant)
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			variants = append(variants, variant)
		}
	}
	return variants
}

// replaceToken substitutes the first occurrence of token in query with
// the replacement, carrying over an upper-case initial.
func replaceToken(query, token, replacement string) string {
	trimmed := strings.Trim(token, ".,;:!?()")
	if trimmed != "" && isUpper(trimmed[0]) && replacement != "" {
		replacement = strings.ToUpper(replacement[:1]) + replacement[1:]
	}
	return strings.Replace(query, trimmed, replacement, 1)
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
