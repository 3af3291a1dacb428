package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"hamsync/internal/randtoken"
)

// DefaultPoWDifficulty is the number of leading zero bits a solved
// puzzle's hash must have, spec.md §6's alias-registration throttle.
const DefaultPoWDifficulty = 18

// Puzzle is a proof-of-work challenge tied to an alias being registered.
type Puzzle struct {
	Alias      string
	Nonce      string
	Difficulty int
}

// NewPuzzle issues a puzzle for alias at the given difficulty.
func NewPuzzle(alias string, difficulty int) (Puzzle, error) {
	nonce, err := randtoken.Generate(16)
	if err != nil {
		return Puzzle{}, err
	}
	return Puzzle{Alias: alias, Nonce: nonce, Difficulty: difficulty}, nil
}

// Solve brute-forces a counter value whose hash of (alias, nonce, counter)
// has at least Difficulty leading zero bits. It has no time bound; the
// caller decides how long to search.
func (p Puzzle) Solve(maxAttempts uint64) (uint64, bool) {
	for counter := uint64(0); counter < maxAttempts; counter++ {
		if leadingZeroBits(p.digest(counter)) >= p.Difficulty {
			return counter, true
		}
	}
	return 0, false
}

// Verify checks that counter solves p.
func (p Puzzle) Verify(counter uint64) error {
	if leadingZeroBits(p.digest(counter)) < p.Difficulty {
		return errors.New("auth: proof of work does not meet difficulty")
	}
	return nil
}

func (p Puzzle) digest(counter uint64) []byte {
	h := sha256.New()
	h.Write([]byte(p.Alias))
	h.Write([]byte(p.Nonce))
	h.Write([]byte(hex.EncodeToString(uint64ToBytes(counter))))
	return h.Sum(nil)
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func leadingZeroBits(digest []byte) int {
	count := 0
	for _, b := range digest {
		if b == 0 {
			count += 8
			continue
		}
		count += leadingZerosByte(b)
		break
	}
	return count
}

func leadingZerosByte(b byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}
