package models

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// ConversationKey indexes the history of an unordered pair of identities.
// Hash selects the bucket; Low and High keep the actual pair so that two
// pairs sharing a bucket never share a log.
type ConversationKey struct {
	Hash uint64
	Low  Identity
	High Identity
}

// KeyFor returns the same key for (a, b) and (b, a).
func KeyFor(a, b Identity) ConversationKey {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return ConversationKey{
		Hash: PairHash(lo, hi),
		Low:  lo,
		High: hi,
	}
}

// PairHash folds an ordered pair into a 64-bit bucket index.
func PairHash(lo, hi Identity) uint64 {
	buf := make([]byte, 0, len(lo)+len(hi)+1)
	buf = append(buf, lo...)
	buf = append(buf, 0)
	buf = append(buf, hi...)
	sum := blake3.Sum256(buf)
	return binary.LittleEndian.Uint64(sum[:8])
}

// Includes reports whether id is one of the two parties.
func (k ConversationKey) Includes(id Identity) bool {
	return k.Low == id || k.High == id
}

// Pair returns the key without its hash, usable as a map key for sub-logs.
func (k ConversationKey) Pair() [2]Identity {
	return [2]Identity{k.Low, k.High}
}
