package rulebook

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Effect is what a matching rule does to the verdict.
type Effect string

const (
	// EffectBlock rejects the change. The first matching block rule wins.
	EffectBlock Effect = "block"

	// EffectUnknown reports that the policy lacks the input to decide.
	EffectUnknown Effect = "unknown"

	// EffectConditional attaches the rule's conditions to the verdict.
	EffectConditional Effect = "conditional"
)

// Valid reports whether e is a known effect.
func (e Effect) Valid() bool {
	switch e {
	case EffectBlock, EffectUnknown, EffectConditional:
		return true
	}
	return false
}

// Document is a parsed rulebook file.
type Document struct {
	Version  string       `yaml:"version"`
	Policies []PolicySpec `yaml:"policies"`
}

// PolicySpec declares one policy.
type PolicySpec struct {
	// Name uniquely identifies the policy.
	Name string `yaml:"name"`

	// Priority orders policies; lower value = higher precedence.
	Priority int `yaml:"priority"`

	Description string `yaml:"description,omitempty"`

	// Mandatory policies run for every request regardless of AppliesWhen.
	Mandatory bool `yaml:"mandatory,omitempty"`

	// AppliesWhen is a CEL boolean over `tags`. Empty means always.
	AppliesWhen string `yaml:"applies_when,omitempty"`

	// Rules are checked in declaration order.
	Rules []RuleSpec `yaml:"rules"`

	// ApproveRationale is the rationale when no rule matches.
	ApproveRationale string `yaml:"approve_rationale,omitempty"`

	// Origin is the file the policy was read from.
	Origin string `yaml:"-"`
}

// RuleSpec is a single guarded effect.
type RuleSpec struct {
	Name string `yaml:"name"`

	// When is a CEL boolean over `id`, `description`, `tags` and
	// `attributes`.
	When string `yaml:"when"`

	Effect     Effect   `yaml:"effect"`
	Rationale  string   `yaml:"rationale"`
	Conditions []string `yaml:"conditions,omitempty"`
}

// Parse decodes a rulebook document. Unknown keys are rejected so typos in
// rule files surface at load time.
func Parse(data []byte, origin string) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Origin: origin, Message: "document is empty"}
		}
		return nil, &ParseError{Origin: origin, Message: yamlMessage(err), Cause: err}
	}

	for i := range doc.Policies {
		doc.Policies[i].Origin = origin
		for j := range doc.Policies[i].Rules {
			r := &doc.Policies[i].Rules[j]
			r.Effect = Effect(strings.ToLower(strings.TrimSpace(string(r.Effect))))
		}
	}
	return &doc, nil
}

// Merge concatenates the policies of several documents.
func Merge(docs ...*Document) *Document {
	merged := &Document{}
	for _, d := range docs {
		if d == nil {
			continue
		}
		if merged.Version == "" {
			merged.Version = d.Version
		}
		merged.Policies = append(merged.Policies, d.Policies...)
	}
	return merged
}

func yamlMessage(err error) string {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		return strings.Join(typeErr.Errors, "; ")
	}
	return err.Error()
}
