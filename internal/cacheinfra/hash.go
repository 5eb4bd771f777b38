package cacheinfra

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// partSeparator keeps ("ab","c") and ("a","bc") from hashing alike.
const partSeparator = 0x1f

// HashParts returns a stable 64-bit xxhash over id followed by each part.
func HashParts(id [16]byte, parts ...string) uint64 {
	return HashPartsSeeded(0, id, parts...)
}

// HashPartsSeeded is HashParts with seed mixed in first. The map hasher passes
// its per-table seed here.
func HashPartsSeeded(seed uint64, id [16]byte, parts ...string) uint64 {
	d := xxhash.New()

	if seed != 0 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], seed)
		_, _ = d.Write(buf[:])
	}

	_, _ = d.Write(id[:])
	for _, p := range parts {
		_, _ = d.Write([]byte{partSeparator})
		_, _ = d.WriteString(p)
	}

	return d.Sum64()
}
