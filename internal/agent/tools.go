package agent

import (
	"context"
	"sort"
	"strings"
)

// ToolResult is the output of one tool, injected into the system prompt.
type ToolResult struct {
	Tool   string
	Output string
}

// Toolset derives reference information for a turn. Implementations must
// be safe for concurrent use and must not block past ctx.
type Toolset interface {
	Context(ctx context.Context, req Request) []ToolResult
}

// knowledge is a two-level lookup table: subject -> topic -> text.
type knowledge map[string]map[string]string

// subjects returns the table keys sorted longest first so "office 365"
// wins over "office".
func (k knowledge) subjects() []string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// findSubject returns the first subject mentioned in text.
func (k knowledge) findSubject(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, s := range k.subjects() {
		if strings.Contains(text, s) {
			return s, true
		}
	}
	return "", false
}

// findTopic returns the topic of subject that matches issue, exact first
// then partial in either direction.
func (k knowledge) findTopic(subject, issue string) (string, string, bool) {
	topics, ok := k[subject]
	if !ok {
		return "", "", false
	}
	issue = strings.ToLower(strings.TrimSpace(issue))
	if text, ok := topics[issue]; ok {
		return issue, text, true
	}
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if issue != "" && (strings.Contains(issue, name) || strings.Contains(name, issue)) {
			return name, topics[name], true
		}
	}
	return "", "", false
}

// mentionsAny reports whether text contains any of words.
func mentionsAny(text string, words ...string) bool {
	return containsAny(strings.ToLower(text), words...)
}
