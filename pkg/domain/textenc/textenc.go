// Package textenc encodes the structured lists carried inside free-text
// phase fields: struggles, embedded job and opportunity lists, and related
// documents. The stored form is a JSON array; a legacy plain-text form
// (newline/semicolon/bullet separated) is still accepted on read so text
// written before these lists were structured survives. Serialization always
// emits the JSON form, so every save upgrades the encoding.
//
// Parsers never fail: malformed JSON falls back to the delimiter split, and
// blank input yields an empty list.
package textenc

import (
	"encoding/json"
	"strings"
)

// Grading tags shared by struggle and opportunity items. These mirror the
// domain levels; the codec keeps its own copies so it stays importable from
// the domain package itself.
const (
	TagHigh   = "High"
	TagMedium = "Medium"
	TagLow    = "Low"
)

// StruggleItem is one customer or internal struggle within a phase.
type StruggleItem struct {
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// JobItem is one entry of a legacy embedded job list.
type JobItem struct {
	Name       string `json:"name"`
	Tag        string `json:"tag"`
	IsPriority bool   `json:"isPriority,omitempty"`
}

// OpportunityItem is one entry of a legacy embedded opportunity list.
type OpportunityItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// RelatedDocument is one linked document reference.
type RelatedDocument struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

func normalizeTag(tag string) string {
	switch tag {
	case TagHigh, TagMedium, TagLow:
		return tag
	}
	return TagMedium
}

// splitLegacy breaks a legacy plain-text list on newlines, semicolons, and
// bullet characters, trimming bullet prefixes and blank entries.
func splitLegacy(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';' || r == '•'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.TrimLeft(part, "-*• \t")
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseStruggles decodes a struggle list from its stored string.
func ParseStruggles(raw string) []StruggleItem {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []StruggleItem
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		out := make([]StruggleItem, 0, len(items))
		for _, item := range items {
			if item.Text == "" {
				continue
			}
			item.Tag = normalizeTag(item.Tag)
			out = append(out, item)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	lines := splitLegacy(raw)
	if len(lines) == 0 {
		return nil
	}
	out := make([]StruggleItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, StruggleItem{Text: line, Tag: TagMedium})
	}
	return out
}

// SerializeStruggles encodes a struggle list into its stored string.
func SerializeStruggles(items []StruggleItem) string {
	return serialize(items)
}

// ParseJobs decodes a legacy embedded job list from its stored string.
func ParseJobs(raw string) []JobItem {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []JobItem
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		out := make([]JobItem, 0, len(items))
		for _, item := range items {
			if item.Name == "" {
				continue
			}
			out = append(out, item)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	lines := splitLegacy(raw)
	if len(lines) == 0 {
		return nil
	}
	out := make([]JobItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, JobItem{Name: line})
	}
	return out
}

// SerializeJobs encodes an embedded job list into its stored string.
func SerializeJobs(items []JobItem) string {
	return serialize(items)
}

// ParseOpportunities decodes a legacy embedded opportunity list.
func ParseOpportunities(raw string) []OpportunityItem {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []OpportunityItem
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		out := make([]OpportunityItem, 0, len(items))
		for _, item := range items {
			if item.Name == "" {
				continue
			}
			item.Tag = normalizeTag(item.Tag)
			out = append(out, item)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	lines := splitLegacy(raw)
	if len(lines) == 0 {
		return nil
	}
	out := make([]OpportunityItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, OpportunityItem{Name: line, Tag: TagMedium})
	}
	return out
}

// SerializeOpportunities encodes an embedded opportunity list.
func SerializeOpportunities(items []OpportunityItem) string {
	return serialize(items)
}

// ParseRelatedDocuments decodes a related-document list.
func ParseRelatedDocuments(raw string) []RelatedDocument {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []RelatedDocument
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		out := make([]RelatedDocument, 0, len(items))
		for _, item := range items {
			if item.Label == "" {
				continue
			}
			out = append(out, item)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	lines := splitLegacy(raw)
	if len(lines) == 0 {
		return nil
	}
	out := make([]RelatedDocument, 0, len(lines))
	for _, line := range lines {
		out = append(out, RelatedDocument{Label: line})
	}
	return out
}

// SerializeRelatedDocuments encodes a related-document list.
func SerializeRelatedDocuments(items []RelatedDocument) string {
	return serialize(items)
}

func serialize[T any](items []T) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		// Only reachable with non-encodable values, which none of the item
		// types contain.
		return "[]"
	}
	return string(data)
}
