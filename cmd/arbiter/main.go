// Arbiter decides whether a proposed change may proceed.
//
// A change request carries a description, tags and attributes. Arbiter
// runs every applicable governance policy against it, resolves the
// verdicts by priority into APPROVED, CONDITIONAL or BLOCKED, and records
// the decision in a hash-chained audit log.
//
// Usage:
//
//	# Decide a single request
//	arbiter decide -f change.json
//
//	# Serve the HTTP API
//	arbiter serve --config arbiter.yaml
//
//	# Decide every request dropped into a directory
//	arbiter watch --dir ./inbox
//
//	# Check the audit chain
//	arbiter audit verify
//
//	# Validate a rulebook
//	arbiter policy lint --file policies/
package main

import "os"

func main() {
	os.Exit(Execute())
}
