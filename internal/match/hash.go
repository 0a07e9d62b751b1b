package match

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// selectionKey is the sort key for deterministic selection among candidates.
// Ties on the hash break lexicographically by player id so the result is a
// pure function of the inputs.
type selectionKey struct {
	hash uint64
	id   string
}

func (a selectionKey) less(b selectionKey) bool {
	if a.hash != b.hash {
		return a.hash < b.hash
	}
	return a.id < b.id
}

// selectionHash mixes a match-scoped seed with a candidate id. The seed is
// derived from state the match alone carries (start time, night number and a
// purpose label), never from arrival order or a process-global RNG, so any
// replay of the same snapshot selects the same candidate.
func selectionHash(startedAt time.Time, night int, label, playerID string) uint64 {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%d|%s|%s", startedAt.UnixNano(), night, label, playerID))
	return binary.BigEndian.Uint64(sum[:8])
}

// pickDeterministic returns the candidate with the lowest selection key, or
// an empty string when there are no candidates.
func pickDeterministic(startedAt time.Time, night int, label string, candidateIDs []string) string {
	best := ""
	var bestKey selectionKey
	for _, id := range candidateIDs {
		k := selectionKey{hash: selectionHash(startedAt, night, label, id), id: id}
		if best == "" || k.less(bestKey) {
			best = id
			bestKey = k
		}
	}
	return best
}
