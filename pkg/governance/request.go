package governance

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TagSet is a normalized, sorted, de-duplicated set of context signals such
// as "database-change" or "production-deploy".
type TagSet []string

// NewTagSet normalizes tags: trims whitespace, lower-cases, drops empties,
// removes duplicates and sorts.
func NewTagSet(tags ...string) TagSet {
	out := make(TagSet, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports whether tag is a member of the set.
func (s TagSet) Has(tag string) bool {
	_, found := slices.BinarySearch(s, strings.ToLower(strings.TrimSpace(tag)))
	return found
}

// HasAny reports whether at least one of tags is a member of the set.
func (s TagSet) HasAny(tags ...string) bool {
	for _, t := range tags {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// ChangeRequest is the unit of evaluation. It is immutable once created:
// every accessor returns a copy, so concurrently running policies cannot
// influence each other through it.
type ChangeRequest struct {
	id          string
	description string
	tags        TagSet
	attributes  map[string]string
	timestamp   time.Time
}

// RequestOption configures optional ChangeRequest fields.
type RequestOption func(*ChangeRequest)

// WithID sets a caller-supplied request id.
func WithID(id string) RequestOption {
	return func(r *ChangeRequest) { r.id = strings.TrimSpace(id) }
}

// WithAttributes attaches structured evidence such as coverage figures or
// rollback plan markers.
func WithAttributes(attrs map[string]string) RequestOption {
	return func(r *ChangeRequest) {
		if len(attrs) > 0 {
			r.attributes = maps.Clone(attrs)
		}
	}
}

// WithTimestamp overrides the creation timestamp.
func WithTimestamp(ts time.Time) RequestOption {
	return func(r *ChangeRequest) {
		if !ts.IsZero() {
			r.timestamp = ts.UTC()
		}
	}
}

// NewChangeRequest creates an immutable change request. An id is generated
// when none is supplied and the timestamp defaults to now.
func NewChangeRequest(description string, tags []string, opts ...RequestOption) *ChangeRequest {
	r := &ChangeRequest{
		description: description,
		tags:        NewTagSet(tags...),
		timestamp:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	return r
}

// ID returns the request identifier.
func (r *ChangeRequest) ID() string { return r.id }

// Description returns the free-text description. The engine never parses it.
func (r *ChangeRequest) Description() string { return r.description }

// Tags returns a copy of the normalized tag set.
func (r *ChangeRequest) Tags() TagSet { return slices.Clone(r.tags) }

// Attributes returns a copy of the structured attributes.
func (r *ChangeRequest) Attributes() map[string]string {
	if r.attributes == nil {
		return map[string]string{}
	}
	return maps.Clone(r.attributes)
}

// Attribute returns a single attribute value.
func (r *ChangeRequest) Attribute(key string) (string, bool) {
	v, ok := r.attributes[key]
	return v, ok
}

// Timestamp returns when the request was created.
func (r *ChangeRequest) Timestamp() time.Time { return r.timestamp }

// changeRequestJSON is the wire shape of a ChangeRequest.
type changeRequestJSON struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// MarshalJSON encodes the request in its reference JSON shape with an
// RFC3339 timestamp.
func (r ChangeRequest) MarshalJSON() ([]byte, error) {
	tags := r.tags
	if tags == nil {
		tags = TagSet{}
	}
	return json.Marshal(changeRequestJSON{
		ID:          r.id,
		Description: r.description,
		Tags:        tags,
		Attributes:  r.attributes,
		Timestamp:   r.timestamp.Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON decodes the reference JSON shape. Missing ids and
// timestamps are filled in the same way NewChangeRequest does.
func (r *ChangeRequest) UnmarshalJSON(data []byte) error {
	var wire changeRequestJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	opts := []RequestOption{WithID(wire.ID), WithAttributes(wire.Attributes)}
	if wire.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", wire.Timestamp, err)
		}
		opts = append(opts, WithTimestamp(ts))
	}

	*r = *NewChangeRequest(wire.Description, wire.Tags, opts...)
	return nil
}

// ParseChangeRequest decodes a JSON change request.
func ParseChangeRequest(data []byte) (*ChangeRequest, error) {
	var r ChangeRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse change request: %w", err)
	}
	return &r, nil
}
