package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed returns a random seed, e.g. for the node selection of a pool.
// If the system source fails the current time is used.
func GenerateSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return binary.LittleEndian.Uint64(buf[:])
	}
	return uint64(time.Now().UnixNano())
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

// HashString returns the 64 bit FNV-1a hash of s. The seed is mixed into the
// offset basis, a seed of 0 yields plain FNV-1a.
func HashString(s string, seed uint64) uint64 {
	h := fnvOffset64 ^ seed
	for _, c := range []byte(s) {
		h = (h ^ uint64(c)) * fnvPrime64
	}
	return h
}
