// Package rulebook implements governance policies declared in YAML with CEL
// expressions.
//
// A rulebook lists policies. Each policy has a name, a priority, an
// optional applies_when expression over the request tags and an ordered
// list of rules:
//
//	policies:
//	  - name: migration-only
//	    priority: 6
//	    applies_when: '"migration" in tags'
//	    rules:
//	      - name: irreversible
//	        when: '!("reversible" in tags)'
//	        effect: conditional
//	        rationale: migration has no documented rollback
//	        conditions:
//	          - provide a down migration
//
// Evaluation: the first matching block rule yields BLOCK; otherwise the
// first matching unknown rule yields UNKNOWN; otherwise every matching
// conditional rule contributes its conditions to a CONDITIONAL verdict;
// otherwise the policy approves. A rule that fails at runtime makes
// Evaluate return an error, which the coordinator records as UNKNOWN.
//
// Expressions are compiled when the rulebook is loaded, so a rulebook that
// loads cannot fail later on a syntax or type error. Default returns the
// embedded rulebook with the eight meta-policies; package source loads
// rulebooks from files or Git.
package rulebook
