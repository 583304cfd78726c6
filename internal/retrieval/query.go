// Package retrieval implements multi-strategy evidence lookup: tag match,
// vector similarity, keyword OR-search, and a full-text fallback, tried in
// that fixed order with first success winning.
package retrieval

import (
	"regexp"
	"sort"
	"strings"
)

var tokenSplit = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// maxKeywords caps the keyword OR-search fan-out.
const maxKeywords = 5

// NormalizeTags lowercases, trims, de-duplicates, and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		clean := strings.ToLower(strings.TrimSpace(tag))
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	sort.Strings(out)
	return out
}

// ExtractHashTags pulls #tag tokens out of a message, normalized.
// A bare "#" is not a tag.
func ExtractHashTags(message string) []string {
	var tags []string
	for _, word := range strings.Fields(message) {
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			tags = append(tags, word[1:])
		}
	}
	return NormalizeTags(tags)
}

// ExtractKeywords tokenizes a message into alphanumeric runs, keeps tokens
// longer than 3 characters, and caps the result at maxKeywords.
func ExtractKeywords(message string) []string {
	tokens := tokenSplit.Split(strings.ToLower(message), -1)
	var keywords []string
	for _, token := range tokens {
		if len(token) > 3 {
			keywords = append(keywords, token)
			if len(keywords) == maxKeywords {
				break
			}
		}
	}
	return keywords
}
