package models

import (
	"slices"
	"strings"
)

// ChangeKind says whether the source record was created or updated by the
// change this event describes.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
)

// EventTarget distinguishes bug-level changes from comment additions.
type EventTarget string

const (
	TargetBug     EventTarget = "bug"
	TargetComment EventTarget = "comment"
)

// Event is an immutable snapshot of a source-tracker record plus a
// description of what changed. It arrives from the webhook boundary already
// parsed and validated; the engine never mutates it and never retains it
// past one processing cycle.
type Event struct {
	SourceID      string      `json:"source_id"`
	Target        EventTarget `json:"target"`
	Kind          ChangeKind  `json:"kind"`
	Actor         string      `json:"actor"`
	ChangedFields []string    `json:"changed_fields,omitempty"`

	Bug     BugSnapshot      `json:"bug"`
	Comment *CommentSnapshot `json:"comment,omitempty"`
}

// BugSnapshot carries the source bug's state as of this event. The engine
// always renders from this snapshot rather than diffing against prior state,
// so out-of-order delivery degrades to last-write-wins.
type BugSnapshot struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Resolution  string   `json:"resolution"`
	Product     string   `json:"product"`
	Component   string   `json:"component"`
	Priority    string   `json:"priority"`
	Severity    string   `json:"severity"`
	Type        string   `json:"type"`
	Whiteboard  string   `json:"whiteboard"`
	AssignedTo  string   `json:"assigned_to"`
	Keywords    []string `json:"keywords,omitempty"`
}

// CommentSnapshot is present on comment-target events.
type CommentSnapshot struct {
	Body    string `json:"body"`
	Private bool   `json:"private"`
}

// eventAttributes names every bug attribute a predicate may match on. Config
// validation rejects predicates referencing anything else, so a typo in an
// action document fails at load instead of silently never matching.
var eventAttributes = map[string]func(Event) string{
	"product":     func(e Event) string { return e.Bug.Product },
	"component":   func(e Event) string { return e.Bug.Component },
	"priority":    func(e Event) string { return e.Bug.Priority },
	"severity":    func(e Event) string { return e.Bug.Severity },
	"status":      func(e Event) string { return e.Bug.Status },
	"resolution":  func(e Event) string { return e.Bug.Resolution },
	"type":        func(e Event) string { return e.Bug.Type },
	"assigned_to": func(e Event) string { return e.Bug.AssignedTo },
	"whiteboard":  func(e Event) string { return e.Bug.Whiteboard },
}

// KnownAttribute reports whether predicates may reference the given name.
func KnownAttribute(name string) bool {
	_, ok := eventAttributes[name]
	return ok
}

// Attribute returns the named bug attribute's value for predicate matching.
func (e Event) Attribute(name string) (string, bool) {
	get, ok := eventAttributes[name]
	if !ok {
		return "", false
	}
	return get(e), true
}

// Changed reports whether the event's changed-field set includes the field.
func (e Event) Changed(field string) bool {
	return slices.Contains(e.ChangedFields, field)
}

// WhiteboardTokens splits the whiteboard into normalized tokens: brackets
// stripped, lowercased, inner whitespace collapsed to dashes.
func (e Event) WhiteboardTokens() []string {
	cleaned := strings.NewReplacer("[", " ", "]", " ").Replace(e.Bug.Whiteboard)
	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		tok = strings.ToLower(tok)
		if !slices.Contains(tokens, tok) {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// HasWhiteboardTag reports whether the whiteboard carries the tag, matching
// either the bare token or a dash-joined multi-word entry.
func (e Event) HasWhiteboardTag(tag string) bool {
	return slices.Contains(e.WhiteboardTokens(), strings.ToLower(tag))
}

// TemplateContext exposes the event to field templates. Every key is always
// present; absent data renders as the empty string. Referencing a key not in
// this map is a render failure, not an empty value.
func (e Event) TemplateContext() map[string]any {
	comment := ""
	if e.Comment != nil {
		comment = e.Comment.Body
	}
	return map[string]any{
		"source_id":      e.SourceID,
		"summary":        e.Bug.Summary,
		"description":    e.Bug.Description,
		"status":         e.Bug.Status,
		"resolution":     e.Bug.Resolution,
		"product":        e.Bug.Product,
		"component":      e.Bug.Component,
		"priority":       e.Bug.Priority,
		"severity":       e.Bug.Severity,
		"type":           e.Bug.Type,
		"whiteboard":     e.Bug.Whiteboard,
		"assigned_to":    e.Bug.AssignedTo,
		"actor":          e.Actor,
		"comment":        comment,
		"changed_fields": strings.Join(e.ChangedFields, ", "),
	}
}
