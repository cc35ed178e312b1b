package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// VerifyResult summarizes a chain verification pass.
type VerifyResult struct {
	Entries    int
	LastHash   string
	VerifiedAt time.Time

	// Broken is the first broken link, nil when the chain is intact.
	Broken *ChainError
}

// Valid reports whether the chain is intact.
func (r *VerifyResult) Valid() bool {
	return r.Broken == nil
}

// Verify walks the log from the start and checks that sequences are
// contiguous, each entry links to its predecessor and each hash matches the
// entry's content. Storage errors are returned as errors; a broken chain is
// reported in the result.
func (l *Log) Verify(ctx context.Context) (*VerifyResult, error) {
	result := &VerifyResult{LastHash: GenesisHash}

	var expectSeq uint64 = 1
	prevHash := GenesisHash

	for entry, err := range l.sink.Entries(ctx) {
		if err != nil {
			return nil, err
		}
		if broken := checkLink(entry.Sequence, expectSeq, entry.PrevHash, prevHash); broken != nil {
			result.Broken = broken
			break
		}

		want, err := ComputeHash(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to hash entry %d: %w", entry.Sequence, err)
		}
		if want != entry.Hash {
			result.Broken = NewChainError(entry.Sequence, "hash does not match entry content")
			break
		}

		result.Entries++
		prevHash = entry.Hash
		expectSeq++
	}

	result.LastHash = prevHash
	result.VerifiedAt = l.now().UTC()

	if result.Broken != nil {
		l.logger.Error("audit chain verification failed",
			"sequence", result.Broken.Sequence,
			"reason", result.Broken.Reason,
		)
	} else {
		l.logger.Info("audit chain verified", "entries", result.Entries)
	}
	return result, nil
}

func checkLink(seq, expectSeq uint64, prevHash, expectPrev string) *ChainError {
	if seq != expectSeq {
		return NewChainError(seq, fmt.Sprintf("expected sequence %d", expectSeq))
	}
	if prevHash != expectPrev {
		return NewChainError(seq, "previous hash does not match preceding entry")
	}
	return nil
}

// AsChainError extracts a ChainError from err.
func AsChainError(err error) (*ChainError, bool) {
	var ce *ChainError
	ok := errors.As(err, &ce)
	return ce, ok
}
