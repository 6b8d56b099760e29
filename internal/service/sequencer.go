package service

import (
	"math/rand"

	"github.com/google/uuid"
)

// GenerateOrder produces the question sequence for a new session from the
// pool of available question ids, which must already be in stable catalog
// order. When randomize is set the pool is shuffled into a uniformly random
// permutation; either way the result is truncated to total. A pool smaller
// than total is returned whole — a degraded count is a catalog configuration
// concern, not a runtime error.
//
// The sequence is generated exactly once per session, at start, and is
// immutable afterwards.
func GenerateOrder(pool []uuid.UUID, randomize bool, total int, rng *rand.Rand) []uuid.UUID {
	order := make([]uuid.UUID, len(pool))
	copy(order, pool)

	if randomize {
		if rng != nil {
			rng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		} else {
			rand.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}
	}

	if total > 0 && total < len(order) {
		order = order[:total]
	}
	return order
}
