package docai

import (
	"fmt"
	"strings"
)

const classifyQuestion = "How would you classify this document?"

const ocrLayoutMode = "layout"

func buildSummaryPrompt(text string) string {
	return `Summarize the document below in 3-5 sentences.
Name the document type, the parties involved and the key dates and amounts.
Plain text only, no markdown.

Document:
` + text
}

func buildSchemaPrompt(className string) string {
	return fmt.Sprintf(`You are a document intake assistant.
Propose the fields worth extracting from a document of class %q.
Return strict JSON object with a single key "fields": an array of objects
with keys name (snake_case string) and question (string, the question whose
answer is the field value). No markdown, no extra keys.`, className)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
