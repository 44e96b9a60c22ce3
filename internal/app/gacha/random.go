package gacha

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/stagelight/fanquest/internal/domain"
)

// NewSeed generates a random seed using crypto/rand. The seed is recorded
// on the grant so a roll can be replayed.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewSource returns a deterministic random source for seed. Not safe for
// concurrent use; create one per roll.
func NewSource(seed int64) domain.RandomSource {
	return rand.New(rand.NewSource(seed))
}
