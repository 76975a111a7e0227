// Package text holds the tokenizer shared by keyword scoring and query
// candidate extraction.
package text

import "strings"

// Stop words to filter out when scoring keyword matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "i": true, "my": true, "me": true, "what": true,
	"or": true, "can": true, "has": true, "had": true, "been": true,
}

const punctuation = ".,!?;:'\"-()[]{}/"

// IsStopWord reports whether a lowercased word carries no search value.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// Words splits text on whitespace, lowercases and trims punctuation.
// Stop words are kept so phrases can be rebuilt from the result.
func Words(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.ToLower(strings.Trim(field, punctuation))
		if cleaned != "" {
			words = append(words, cleaned)
		}
	}
	return words
}

// Tokenize splits text into words, lowercases, trims punctuation, and removes stop words
func Tokenize(text string) []string {
	words := Words(text)
	filtered := words[:0]
	for _, word := range words {
		if !IsStopWord(word) {
			filtered = append(filtered, word)
		}
	}
	return filtered
}

// ContainsAll checks if all query words (after filtering) appear in the document
func ContainsAll(document, query string) bool {
	queryWords := Tokenize(query)
	if len(queryWords) == 0 {
		return false
	}

	docWordSet := make(map[string]bool)
	for _, word := range Tokenize(document) {
		docWordSet[word] = true
	}

	for _, qWord := range queryWords {
		if !docWordSet[qWord] {
			return false
		}
	}
	return true
}
