package models

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// StepKind names one atomic target-system operation.
type StepKind string

const (
	StepCreateIssue  StepKind = "create_issue"
	StepUpdateFields StepKind = "update_fields"
	StepAddComment   StepKind = "add_comment"
	StepSyncStatus   StepKind = "sync_status"
)

var stepKinds = map[StepKind]bool{
	StepCreateIssue:  true,
	StepUpdateFields: true,
	StepAddComment:   true,
	StepSyncStatus:   true,
}

// Step declares one operation in an action's sequence and which rendered
// templates it consumes. Steps execute strictly in declared order.
type Step struct {
	Kind StepKind `yaml:"kind"`

	// Fields maps target-system field names onto template names for
	// create_issue and update_fields steps.
	Fields map[string]string `yaml:"fields,omitempty"`

	// Template names the comment body template for add_comment steps.
	Template string `yaml:"template,omitempty"`
}

// Predicate is the structural match an event must satisfy for an action to
// apply. All set members must hold (conjunction).
type Predicate struct {
	// WhiteboardTag matches events whose whiteboard carries the tag.
	WhiteboardTag string `yaml:"whiteboard_tag,omitempty"`

	// Keyword matches events whose bug carries the keyword.
	Keyword string `yaml:"keyword,omitempty"`

	// Fields matches named bug attributes for structural equality. Keys must
	// name attributes that exist on the event schema.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// IsZero reports whether no predicate member is set.
func (p Predicate) IsZero() bool {
	return p.WhiteboardTag == "" && p.Keyword == "" && len(p.Fields) == 0
}

// Key is a canonical rendering of the predicate used to detect configs that
// declare byte-identical match conditions.
func (p Predicate) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tag=%s;kw=%s", strings.ToLower(p.WhiteboardTag), strings.ToLower(p.Keyword))
	for _, k := range sortedKeys(p.Fields) {
		fmt.Fprintf(&b, ";%s=%s", k, p.Fields[k])
	}
	return b.String()
}

// ActionConfig is one validated synchronization rule: a predicate over event
// attributes, a target project, an ordered step list, and the field
// templates those steps consume. Configs are immutable after load and
// replaced wholesale on reload.
type ActionConfig struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"`

	Project string    `yaml:"jira_project_key"`
	When    Predicate `yaml:"when"`
	Steps   []Step    `yaml:"steps"`

	// Templates declares the named field templates steps reference.
	Templates map[string]string `yaml:"templates"`

	// SyncWhiteboardLabels attaches whiteboard-derived labels to created and
	// updated issues. Defaults to true, matching the upstream tracker habit
	// of mirroring whiteboard entries as issue labels.
	SyncWhiteboardLabels *bool `yaml:"sync_whiteboard_labels,omitempty"`

	// StatusMap and ResolutionMap translate source statuses/resolutions into
	// target workflow statuses for sync_status steps.
	StatusMap     map[string]string `yaml:"status_map,omitempty"`
	ResolutionMap map[string]string `yaml:"resolution_map,omitempty"`
}

// IsEnabled treats a missing enabled flag as on.
func (a ActionConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// LabelsEnabled treats a missing sync_whiteboard_labels flag as on.
func (a ActionConfig) LabelsEnabled() bool {
	return a.SyncWhiteboardLabels == nil || *a.SyncWhiteboardLabels
}

// Validate enforces the load-time contract: a malformed rule is rejected
// before it can see live traffic. It checks the target project, the step
// list, template syntax, dangling template references, and predicate
// attribute names.
func (a ActionConfig) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("action name is required")
	}
	if strings.TrimSpace(a.Project) == "" {
		return fmt.Errorf("action %q: jira_project_key is required", a.Name)
	}
	if len(a.Steps) == 0 {
		return fmt.Errorf("action %q: at least one step is required", a.Name)
	}
	if a.When.IsZero() {
		return fmt.Errorf("action %q: predicate must set whiteboard_tag, keyword, or fields", a.Name)
	}
	for attr := range a.When.Fields {
		if !KnownAttribute(attr) {
			return fmt.Errorf("action %q: predicate references unknown event attribute %q", a.Name, attr)
		}
	}
	for name, body := range a.Templates {
		if _, err := template.New(name).Parse(body); err != nil {
			return fmt.Errorf("action %q: template %q: %w", a.Name, name, err)
		}
	}
	for i, step := range a.Steps {
		if err := a.validateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

func (a ActionConfig) validateStep(i int, step Step) error {
	if !stepKinds[step.Kind] {
		return fmt.Errorf("action %q: step %d: unknown kind %q", a.Name, i+1, step.Kind)
	}
	switch step.Kind {
	case StepCreateIssue, StepUpdateFields:
		if len(step.Fields) == 0 {
			return fmt.Errorf("action %q: step %d (%s): fields are required", a.Name, i+1, step.Kind)
		}
		for field, tmpl := range step.Fields {
			if _, ok := a.Templates[tmpl]; !ok {
				return fmt.Errorf("action %q: step %d (%s): field %q references undeclared template %q",
					a.Name, i+1, step.Kind, field, tmpl)
			}
		}
	case StepAddComment:
		if step.Template == "" {
			return fmt.Errorf("action %q: step %d (add_comment): template is required", a.Name, i+1)
		}
		if _, ok := a.Templates[step.Template]; !ok {
			return fmt.Errorf("action %q: step %d (add_comment): references undeclared template %q",
				a.Name, i+1, step.Template)
		}
	case StepSyncStatus:
		if len(a.StatusMap) == 0 && len(a.ResolutionMap) == 0 {
			return fmt.Errorf("action %q: step %d (sync_status): status_map or resolution_map is required", a.Name, i+1)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
