// Package actions loads the synchronization rule set and routes events to
// the first applicable rule. Validation happens entirely at load time; a
// malformed rule can never be discovered while serving live traffic.
package actions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bugbridge/internal/bridge/models"
)

// Set is the loaded, validated action list. Order is load order and is the
// sole precedence rule during matching. A Set is immutable; reloads build a
// new one and swap it wholesale.
type Set struct {
	actions []models.ActionConfig
}

type document struct {
	Actions []models.ActionConfig `yaml:"actions"`
}

// Load reads and validates the YAML action document at path.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions file: %w", err)
	}
	return Parse(raw)
}

// Parse validates a raw YAML action document. Any invalid rule rejects the
// whole document: serving a partial rule set would silently change which
// rule wins precedence.
func Parse(raw []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse actions document: %w", err)
	}
	if len(doc.Actions) == 0 {
		return nil, fmt.Errorf("actions document declares no actions")
	}

	names := make(map[string]bool, len(doc.Actions))
	predicates := make(map[string]string, len(doc.Actions))
	for _, action := range doc.Actions {
		if err := action.Validate(); err != nil {
			return nil, err
		}
		if names[action.Name] {
			return nil, fmt.Errorf("duplicate action name %q", action.Name)
		}
		names[action.Name] = true

		// Two rules with identical predicates for the same project is an
		// authoring mistake, not intentional layering.
		key := action.Project + "|" + action.When.Key()
		if prev, dup := predicates[key]; dup {
			return nil, fmt.Errorf("actions %q and %q declare identical predicates for project %q",
				prev, action.Name, action.Project)
		}
		predicates[key] = action.Name
	}

	return &Set{actions: doc.Actions}, nil
}

// Actions returns the rules in load order.
func (s *Set) Actions() []models.ActionConfig {
	return s.actions
}

// Len returns the number of loaded rules.
func (s *Set) Len() int {
	return len(s.actions)
}

// Match selects the action applying to the event: the first enabled rule in
// load order whose predicate holds. Later matches are deliberately ignored
// so precedence stays deterministic and auditable without priority numbers.
func (s *Set) Match(event models.Event) (models.ActionConfig, bool) {
	for _, action := range s.actions {
		if !action.IsEnabled() {
			continue
		}
		if matches(event, action.When) {
			return action, true
		}
	}
	return models.ActionConfig{}, false
}

func matches(event models.Event, p models.Predicate) bool {
	if p.WhiteboardTag != "" && !event.HasWhiteboardTag(p.WhiteboardTag) {
		return false
	}
	if p.Keyword != "" && !hasKeyword(event, p.Keyword) {
		return false
	}
	for attr, want := range p.Fields {
		got, ok := event.Attribute(attr)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func hasKeyword(event models.Event, keyword string) bool {
	for _, kw := range event.Bug.Keywords {
		if kw == keyword {
			return true
		}
	}
	return false
}
