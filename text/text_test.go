package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"The patient has a fever.", []string{"patient", "fever"}},
		{"  Chest-pain, (acute)!  ", []string{"chest-pain", "acute"}},
		{"", []string{}},
		{"the of and", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.input), tt.input)
	}
}

func TestWordsKeepsStopWords(t *testing.T) {
	assert.Equal(t, []string{"shortness", "of", "breath"}, Words("Shortness of breath."))
}

func TestContainsAll(t *testing.T) {
	doc := "Malaria presents with fever, chills and headache."
	assert.True(t, ContainsAll(doc, "fever and headache"))
	assert.False(t, ContainsAll(doc, "fever and rash"))
	assert.False(t, ContainsAll(doc, "the and"))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.False(t, IsStopWord("fever"))
}
