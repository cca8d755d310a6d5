package eventlog

import "fmt"

// VerifyResult is the outcome of a chain verification pass.
type VerifyResult struct {
	Valid         bool
	FailedAtIndex int // -1 when Valid is true
	Reason        string
}

func ok() VerifyResult {
	return VerifyResult{Valid: true, FailedAtIndex: -1}
}

func fail(index int, reason string) VerifyResult {
	return VerifyResult{Valid: false, FailedAtIndex: index, Reason: reason}
}

// VerifyChain checks an ordered (ascending timestamp) list of events
// from a single (tenantId, sessionId) for hash-chain integrity. It never
// panics and never mutates its input — a corrupt chain is reported, not
// thrown.
func VerifyChain(events []*Event) VerifyResult {
	if len(events) == 0 {
		return ok()
	}
	if events[0].PrevHash != nil {
		return fail(0, "genesis event must have a nil prevHash")
	}
	var prevHash string
	for i, e := range events {
		recomputed, err := ComputeHash(e)
		if err != nil {
			return fail(i, fmt.Sprintf("failed to recompute hash: %v", err))
		}
		if recomputed != e.Hash {
			return fail(i, "stored hash does not match recomputed hash")
		}
		if i > 0 {
			if e.PrevHash == nil || *e.PrevHash != prevHash {
				return fail(i, "prevHash does not match the previous event's hash")
			}
		}
		prevHash = e.Hash
	}
	return ok()
}

// VerifyChainBatch is the streaming variant used to verify a session's
// events page by page: expectedPrevHash anchors the first event of this
// page (nil for the true genesis), and the caller threads the returned
// last hash as the next page's anchor.
func VerifyChainBatch(events []*Event, expectedPrevHash *string) (VerifyResult, string) {
	lastHash := ""
	if expectedPrevHash != nil {
		lastHash = *expectedPrevHash
	}
	if len(events) == 0 {
		return ok(), lastHash
	}

	first := events[0]
	if expectedPrevHash == nil {
		if first.PrevHash != nil {
			return fail(0, "genesis event must have a nil prevHash"), lastHash
		}
	} else {
		if first.PrevHash == nil || *first.PrevHash != *expectedPrevHash {
			return fail(0, "first event's prevHash does not match the expected anchor"), lastHash
		}
	}

	prevHash := ""
	if first.PrevHash != nil {
		prevHash = *first.PrevHash
	}
	for i, e := range events {
		recomputed, err := ComputeHash(e)
		if err != nil {
			return fail(i, fmt.Sprintf("failed to recompute hash: %v", err)), lastHash
		}
		if recomputed != e.Hash {
			return fail(i, "stored hash does not match recomputed hash"), lastHash
		}
		if i > 0 {
			if e.PrevHash == nil || *e.PrevHash != prevHash {
				return fail(i, "prevHash does not match the previous event's hash"), lastHash
			}
		}
		prevHash = e.Hash
		lastHash = e.Hash
	}
	return ok(), lastHash
}
