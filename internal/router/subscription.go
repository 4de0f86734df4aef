// Package router matches change events against subscription patterns and
// fans them out to delivery targets.
package router

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// Pattern is a predicate over a change event. All populated clauses must
// match; an empty pattern matches everything. Matching is pure and never
// performs I/O.
type Pattern struct {
	// Source restricts matching to events from one capture source.
	Source string `yaml:"source"`

	// Kinds restricts matching to the listed event kinds.
	Kinds []string `yaml:"kinds"`

	// Fields are exact-match predicates over top-level payload fields.
	Fields map[string]string `yaml:"fields"`
}

// Match reports whether the event satisfies every clause of the pattern.
func (p Pattern) Match(event models.ChangeEvent) bool {
	if p.Source != "" && p.Source != event.SourceID {
		return false
	}

	if len(p.Kinds) > 0 {
		found := false
		for _, k := range p.Kinds {
			if models.EventKind(k) == event.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(p.Fields) > 0 {
		var fields map[string]any
		if err := json.Unmarshal(event.Payload, &fields); err != nil {
			return false
		}
		for key, want := range p.Fields {
			value, ok := fields[key]
			if !ok || fmt.Sprintf("%v", value) != want {
				return false
			}
		}
	}

	return true
}

// Subscription binds a pattern to a delivery target. Subscriptions are
// static configuration, loaded once at process start.
type Subscription struct {
	Name    string
	Pattern Pattern
	Target  DeliveryTarget
}

// TargetSpec is the declarative half of a subscription's target; the
// process resolves it to a live DeliveryTarget at startup.
type TargetSpec struct {
	// Type is "queue" or "direct".
	Type string `yaml:"type"`

	// Kind is the work-item kind delivered through this target; it also
	// names the record key the operation's result is stored under.
	Kind string `yaml:"kind"`
}

// SubscriptionSpec is one entry of the subscriptions file.
type SubscriptionSpec struct {
	Name    string     `yaml:"name"`
	Pattern Pattern    `yaml:",inline"`
	Target  TargetSpec `yaml:"target"`
}

type subscriptionsFile struct {
	Subscriptions []SubscriptionSpec `yaml:"subscriptions"`
}

// LoadSpecs reads subscription specs from a YAML file.
func LoadSpecs(path string) ([]SubscriptionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}

	var file subscriptionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions file: %w", err)
	}

	for i, spec := range file.Subscriptions {
		if spec.Name == "" {
			return nil, fmt.Errorf("subscription %d has no name", i)
		}
		if spec.Target.Kind == "" {
			return nil, fmt.Errorf("subscription %s has no target kind", spec.Name)
		}
		switch spec.Target.Type {
		case "queue", "direct":
		default:
			return nil, fmt.Errorf("subscription %s has unknown target type %q", spec.Name, spec.Target.Type)
		}
	}

	return file.Subscriptions, nil
}
