package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"

	"mercator-hq/arbiter/pkg/governance"
)

// GenesisHash precedes the first entry of every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CanonicalJSON returns the bytes an entry's hash is computed over: the JSON
// encoding of the entry with an empty Hash, NFC-normalized so equivalent
// Unicode spellings hash identically.
func CanonicalJSON(entry *governance.AuditEntry) ([]byte, error) {
	c := *entry
	c.Hash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, err
	}
	return norm.NFC.Bytes(data), nil
}

// ComputeHash returns the hex SHA-256 of the entry's canonical form.
func ComputeHash(entry *governance.AuditEntry) (string, error) {
	data, err := CanonicalJSON(entry)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CloneEntry returns a deep copy of entry so callers cannot alias stored
// state.
func CloneEntry(entry *governance.AuditEntry) *governance.AuditEntry {
	if entry == nil {
		return nil
	}
	c := *entry
	c.Skipped = slices.Clone(entry.Skipped)
	c.Decision.Conditions = slices.Clone(entry.Decision.Conditions)
	c.Decision.Verdicts = slices.Clone(entry.Decision.Verdicts)
	for i := range c.Decision.Verdicts {
		c.Decision.Verdicts[i].Conditions = slices.Clone(c.Decision.Verdicts[i].Conditions)
	}
	return &c
}

// canonicalize converts every timestamp to UTC and replaces nil slices with
// empty ones so an entry encodes identically before and after a storage
// round trip.
func canonicalize(entry *governance.AuditEntry) {
	entry.RecordedAt = entry.RecordedAt.UTC()
	entry.Decision.DecidedAt = entry.Decision.DecidedAt.UTC()
	if entry.Skipped == nil {
		entry.Skipped = []governance.SkippedPolicy{}
	}
	if entry.Decision.Verdicts == nil {
		entry.Decision.Verdicts = []governance.Verdict{}
	}
	if entry.Decision.Conditions == nil {
		entry.Decision.Conditions = []string{}
	}
	for i := range entry.Decision.Verdicts {
		v := &entry.Decision.Verdicts[i]
		v.EvaluatedAt = utc(v.EvaluatedAt)
		if v.Conditions == nil {
			v.Conditions = []string{}
		}
	}
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
