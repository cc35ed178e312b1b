package rulebook

import (
	"fmt"
	"strings"
)

// ParseError represents a rulebook file that could not be decoded.
type ParseError struct {
	// Origin is the file or source name.
	Origin string

	// Message describes the parsing error.
	Message string

	// Cause is the underlying decoder error.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %q: %s", e.Origin, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// CompileError represents a CEL expression that failed to compile.
type CompileError struct {
	Policy string
	Rule   string // empty for applies_when

	// Expression is the offending source text.
	Expression string

	Cause error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("policy %q: applies_when: %v", e.Policy, e.Cause)
	}
	return fmt.Sprintf("policy %q rule %q: %v", e.Policy, e.Rule, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// EvalError represents a rule that failed at evaluation time, for example
// by reading an attribute that is not present.
type EvalError struct {
	Policy string
	Rule   string
	Cause  error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *EvalError) Unwrap() error {
	return e.Cause
}

// LintError is returned by Compile when a document has error-level issues.
type LintError struct {
	Issues []Issue
}

// Error implements the error interface.
func (e *LintError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid rulebook: %s", e.Issues[0])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid rulebook: %d errors:", len(e.Issues))
	for _, issue := range e.Issues {
		sb.WriteString("\n  - ")
		sb.WriteString(issue.String())
	}
	return sb.String()
}
