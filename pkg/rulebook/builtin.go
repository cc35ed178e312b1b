package rulebook

import (
	_ "embed"
)

// BuiltinOrigin names the embedded rulebook in errors and audit output.
const BuiltinOrigin = "builtin:default.yaml"

//go:embed default.yaml
var defaultYAML []byte

// DefaultYAML returns a copy of the embedded default rulebook source.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// DefaultDocument parses the embedded default rulebook.
func DefaultDocument() (*Document, error) {
	return Parse(defaultYAML, BuiltinOrigin)
}

// Default compiles the embedded default rulebook: the eight meta-policies
// at their canonical priorities.
func Default(opts ...Option) (*Rulebook, error) {
	return Load(defaultYAML, BuiltinOrigin, opts...)
}
