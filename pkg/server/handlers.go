package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// Decider decides change requests. *governor.Governor implements it.
type Decider interface {
	Record(ctx context.Context, req *governance.ChangeRequest) (*governance.AuditEntry, error)
	Policies() []governance.Policy
}

// AuditReader reads the audit log. *audit.Log implements it.
type AuditReader interface {
	Query(ctx context.Context, q *audit.Query) ([]*governance.AuditEntry, error)
	Verify(ctx context.Context) (*audit.VerifyResult, error)
	Count(ctx context.Context) (int, error)
}

// DecisionResponse is the body of a successful POST /v1/decisions.
type DecisionResponse struct {
	governance.Decision
	AuditSequence uint64 `json:"auditSequence"`
	AuditHash     string `json:"auditHash"`
}

// AuditListResponse is the body of GET /v1/audit.
type AuditListResponse struct {
	Entries []*governance.AuditEntry `json:"entries"`
	Count   int                      `json:"count"`
}

// VerifyResponse is the body of GET /v1/audit/verify.
type VerifyResponse struct {
	Valid      bool      `json:"valid"`
	Entries    int       `json:"entries"`
	LastHash   string    `json:"lastHash"`
	VerifiedAt time.Time `json:"verifiedAt"`
	Broken     *Break    `json:"broken,omitempty"`
}

// Break locates a broken link in the audit chain.
type Break struct {
	Sequence uint64 `json:"sequence"`
	Reason   string `json:"reason"`
}

// PolicyInfo describes one registered policy.
type PolicyInfo struct {
	Name        string `json:"name"`
	Priority    int    `json:"priority"`
	Mandatory   bool   `json:"mandatory"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body")
		return
	}

	req, err := governance.ParseChangeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	entry, err := s.deps.Decider.Record(r.Context(), req)
	if err != nil {
		var auditErr *governance.AuditFailureError
		if errors.As(err, &auditErr) {
			writeError(w, http.StatusServiceUnavailable, CodeAuditFailure,
				"decision could not be recorded in the audit log")
			return
		}
		s.logger.ErrorContext(r.Context(), "decide failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "decision failed")
		return
	}

	writeJSON(w, http.StatusOK, DecisionResponse{
		Decision:      entry.Decision,
		AuditSequence: entry.Sequence,
		AuditHash:     entry.Hash,
	})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidQuery, err.Error())
		return
	}

	entries, err := s.deps.Audit.Query(r.Context(), q)
	if err != nil {
		var queryErr *audit.QueryError
		if errors.As(err, &queryErr) {
			writeError(w, http.StatusBadRequest, CodeInvalidQuery, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, AuditListResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Audit.Verify(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "audit verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "audit verification failed")
		return
	}

	resp := VerifyResponse{
		Valid:      result.Valid(),
		Entries:    result.Entries,
		LastHash:   result.LastHash,
		VerifiedAt: result.VerifiedAt,
	}
	if result.Broken != nil {
		resp.Broken = &Break{Sequence: result.Broken.Sequence, Reason: result.Broken.Reason}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePolicies(w http.ResponseWriter, _ *http.Request) {
	policies := s.deps.Decider.Policies()
	infos := make([]PolicyInfo, 0, len(policies))
	for _, p := range policies {
		info := PolicyInfo{
			Name:      p.Name(),
			Priority:  p.Priority(),
			Mandatory: governance.IsMandatory(p),
		}
		if d, ok := p.(interface{ Description() string }); ok {
			info.Description = d.Description()
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Audit.Count(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  "audit store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"policies":     len(s.deps.Decider.Policies()),
		"auditEntries": count,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// parseQuery maps URL parameters onto an audit query. Range and status
// checks are left to Query.Validate.
func parseQuery(v url.Values) (*audit.Query, error) {
	q := &audit.Query{
		RequestID:      v.Get("request_id"),
		FinalStatus:    governance.FinalStatus(v.Get("status")),
		DominantPolicy: v.Get("dominant_policy"),
	}

	var err error
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return nil, err
	}
	if q.Offset, err = intParam(v, "offset"); err != nil {
		return nil, err
	}
	if q.Since, err = timeParam(v, "since"); err != nil {
		return nil, err
	}
	if q.Until, err = timeParam(v, "until"); err != nil {
		return nil, err
	}
	return q, nil
}

func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func timeParam(v url.Values, name string) (*time.Time, error) {
	raw := v.Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp, got %q", name, raw)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
