package ai

import (
	"fmt"
	"strings"

	"github.com/poiesic/medrag/schema"
)

const extractionPromptTemplate = `You extract medical knowledge from clinical text and return it as a graph.

Allowed entity types: %s

Allowed relationship types: %s

Rules:
- Extract only entities that are explicitly mentioned or clearly implied by the text. Do not hallucinate.
- Each entity has a short unique "id", a "name" as written in the text, a "type" from the allowed list and an optional one-sentence "description".
- Relationships refer to entities by their "id" and use a "type" from the allowed list.
- Put any extra facts (severity, dosage, onset) in "properties" as string values.
- If nothing can be extracted, return {"entities": [], "relationships": []}.

Output ONLY valid JSON. Do not include any preamble or explanation. Use exactly this shape:

{
  "entities": [
    {"id": "e1", "type": "Disease", "name": "Malaria", "description": "...", "properties": {}}
  ],
  "relationships": [
    {"source": "e2", "target": "e1", "type": "INDICATES", "properties": {}}
  ]
}

Text:
%s

JSON:`

// BuildExtractionPrompt renders the extraction prompt for text under the given schema.
func BuildExtractionPrompt(s *schema.Schema, text string) string {
	return fmt.Sprintf(extractionPromptTemplate,
		strings.Join(s.EntityTypes(), ", "),
		strings.Join(s.RelationshipTypes(), ", "),
		text)
}

// truncateRunes cuts text to at most n characters.
func truncateRunes(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

const answerPromptTemplate = `You are a medical knowledge assistant. Answer the question using only the context below.
If the context does not contain the answer, say that you do not know.
This is decision support, not a diagnosis: mention any red flags that call for urgent care.

%s
Question: %s

Answer:`

// BuildAnswerPrompt renders a grounded question-answering prompt. An empty
// context is replaced by a note that nothing relevant was found.
func BuildAnswerPrompt(context, question string) string {
	if strings.TrimSpace(context) == "" {
		context = "No relevant medical knowledge was found.\n"
	}
	return fmt.Sprintf(answerPromptTemplate, context, question)
}
