package match

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// roleOrder is the fixed distribution, assigned in sorted-key order.
var roleOrder = []Role{
	RoleWerewolf, RoleWerewolf,
	RoleSeer,
	RoleDoctor,
	RoleVillager, RoleVillager, RoleVillager, RoleVillager,
}

// AssignRoles deterministically shuffles the 8 player ids into roles. The
// sort key is a hash of (playerId, seed); identical inputs always produce
// identical assignments, which keeps replays and audits reproducible without
// mocking a random source.
func AssignRoles(playerIDs []string, seed string) (map[string]Role, error) {
	if len(playerIDs) != PlayerCount {
		return nil, fmt.Errorf("%w: expected %d players, got %d", ErrBadRoster, PlayerCount, len(playerIDs))
	}
	seen := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: player id must not be empty", ErrBadRoster)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate player id %q", ErrBadRoster, id)
		}
		seen[id] = true
	}

	keys := make([]selectionKey, 0, len(playerIDs))
	for _, id := range playerIDs {
		sum := sha256.Sum256([]byte(id + "|" + seed))
		keys = append(keys, selectionKey{
			hash: binary.BigEndian.Uint64(sum[:8]),
			id:   id,
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make(map[string]Role, len(keys))
	for i, k := range keys {
		out[k.id] = roleOrder[i]
	}
	return out, nil
}
