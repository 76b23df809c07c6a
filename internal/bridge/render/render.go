// Package render turns an (event, action) pair into the field values the
// step executor ships to the target system. Rendering is a pure function of
// the event snapshot: no I/O, no mutation, identical input yields identical
// output, so replays and golden tests are exact.
package render

import (
	"fmt"
	"strings"
	"text/template"

	"bugbridge/internal/bridge/models"
)

// maxFieldLen is the Jira field size ceiling; longer rendered values are
// truncated rather than rejected, matching the upstream bridge behavior.
const maxFieldLen = 32767

const labelPrefix = "bugzilla-label-"

// Error reports a template that referenced data the event does not define.
// It is terminal for the event and never retried: a data problem stays a
// data problem on every attempt.
type Error struct {
	Action   string
	Template string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render action %q template %q: %v", e.Action, e.Template, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FieldSet is the ephemeral output of one rendering pass: one value per
// declared template, plus whiteboard-derived labels when the action syncs
// them. Never persisted.
type FieldSet struct {
	Values map[string]string
	Labels []string
}

// Fields evaluates every declared template of the action against the
// event's snapshot. Undefined references fail closed: the whole set is
// rejected so no partially rendered issue reaches the target system.
func Fields(event models.Event, action models.ActionConfig) (*FieldSet, error) {
	ctx := event.TemplateContext()
	values := make(map[string]string, len(action.Templates))

	for name, body := range action.Templates {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
		if err != nil {
			// Syntax is checked at load time; reaching this means the config
			// was not loaded through the validating loader.
			return nil, &Error{Action: action.Name, Template: name, Err: err}
		}
		var out strings.Builder
		if err := tmpl.Execute(&out, ctx); err != nil {
			return nil, &Error{Action: action.Name, Template: name, Err: err}
		}
		values[name] = truncate(out.String())
	}

	fs := &FieldSet{Values: values}
	if action.LabelsEnabled() {
		fs.Labels = Labels(event)
	}
	return fs, nil
}

// Labels derives issue labels from the event's whiteboard: each normalized
// token contributes the bare token and a source-prefixed variant.
func Labels(event models.Event) []string {
	tokens := event.WhiteboardTokens()
	if len(tokens) == 0 {
		return nil
	}
	labels := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		labels = append(labels, tok, labelPrefix+tok)
	}
	return labels
}

func truncate(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	return s[:maxFieldLen]
}
