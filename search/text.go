package search

import "strings"

// Stop words ignored when explaining a match
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "i": true, "want": true, "like": true, "some": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// MatchedTerms returns the query words, minus stop words, that appear
// verbatim in description, in query order without repeats. It explains a
// match to a reader and plays no part in ranking.
func MatchedTerms(description, query string) []string {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return nil
	}

	docWords := make(map[string]bool)
	for _, word := range tokenizeAndFilter(description) {
		docWords[word] = true
	}

	var matched []string
	seen := make(map[string]bool, len(queryWords))
	for _, word := range queryWords {
		if docWords[word] && !seen[word] {
			matched = append(matched, word)
			seen[word] = true
		}
	}
	return matched
}
