package search

import (
	"slices"
	"strings"

	"github.com/poiesic/medrag/text"
)

// MaxCandidates caps the symptom phrases sent to graph traversal.
const MaxCandidates = 10

// SymptomKeywords are looked up in every query before n-gram candidates.
var SymptomKeywords = []string{
	"pain", "ache", "fever", "cough", "headache", "nausea", "vomiting",
	"diarrhea", "fatigue", "weakness", "dizziness", "shortness of breath",
	"chest pain", "abdominal pain", "sore throat", "runny nose", "rash",
	"swelling", "bleeding", "numbness", "tingling", "confusion",
}

// Candidates returns the phrases of query that may name a symptom: the
// SymptomKeywords it contains, then every run of one to three consecutive
// words longer than three characters. At most MaxCandidates are returned.
func Candidates(query string) []string {
	lower := strings.ToLower(query)
	var found []string

	for _, keyword := range SymptomKeywords {
		if strings.Contains(lower, keyword) {
			found = append(found, keyword)
		}
	}

	words := text.Words(query)
	for i := range words {
		for j := i + 1; j <= min(i+3, len(words)); j++ {
			phrase := strings.Join(words[i:j], " ")
			if len(phrase) > 3 && !slices.Contains(found, phrase) {
				found = append(found, phrase)
			}
		}
	}

	if len(found) > MaxCandidates {
		found = found[:MaxCandidates]
	}
	return found
}
