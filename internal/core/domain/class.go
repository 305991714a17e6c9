package domain

import (
	"fmt"
	"strings"
	"time"
)

// FieldPrompt pairs an extraction field name with the question that fills it.
type FieldPrompt struct {
	Name     string `json:"name"`
	Question string `json:"question"`
}

// DocumentClass is a named document type with an ordered extraction schema.
// A class with zero fields is valid and yields no structured extraction.
type DocumentClass struct {
	Name      string        `json:"name"`
	Fields    []FieldPrompt `json:"fields"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NormalizeClassName maps user-facing names onto the canonical stored form:
// lowercased, trimmed, inner whitespace collapsed.
func NormalizeClassName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Normalized returns a copy with the canonical name and trimmed fields.
func (c DocumentClass) Normalized() DocumentClass {
	out := c
	out.Name = NormalizeClassName(c.Name)
	if c.Fields != nil {
		fields := make([]FieldPrompt, len(c.Fields))
		for i, field := range c.Fields {
			fields[i] = FieldPrompt{
				Name:     strings.TrimSpace(field.Name),
				Question: strings.TrimSpace(field.Question),
			}
		}
		out.Fields = fields
	}
	return out
}

// Validate rejects definitions that must never reach storage: empty class
// names, empty field names or questions, duplicate field names.
func (c DocumentClass) Validate() error {
	if NormalizeClassName(c.Name) == "" {
		return WrapError(ErrInvalidInput, "validate class", fmt.Errorf("class name is empty"))
	}

	seen := make(map[string]struct{}, len(c.Fields))
	for _, field := range c.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return WrapError(ErrInvalidInput, "validate class", fmt.Errorf("class %q: field name is empty", c.Name))
		}
		if strings.TrimSpace(field.Question) == "" {
			return WrapError(ErrInvalidInput, "validate class", fmt.Errorf("class %q: field %q has an empty question", c.Name, name))
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return WrapError(ErrInvalidInput, "validate class", fmt.Errorf("class %q: duplicate field %q", c.Name, name))
		}
		seen[key] = struct{}{}
	}
	return nil
}
