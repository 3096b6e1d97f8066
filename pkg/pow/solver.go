// Package pow implements the proof-of-work puzzle at the heart of the login
// flow: find a 16-byte solution S, beginning with key and followed by a
// random suffix R, such that the lowercase hex rendering of the MurmurHash3
// x64 128-bit hash of S starts with a given mask.
package pow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/twmb/murmur3"
)

// MaxIterations bounds the search; a puzzle that isn't solved within this
// many attempts is reported as exhausted rather than searched forever.
const MaxIterations = 8_000_000

// MaxMaskLen is the longest mask this solver will attempt. A longer mask
// makes the expected iteration count intractable before MaxIterations is
// reached, so it is rejected up front.
const MaxMaskLen = 5

// suffixLen is the fixed length of a solution S = key||R.
const suffixLen = 16

// ErrMaskTooLong is returned when the requested mask exceeds MaxMaskLen.
var ErrMaskTooLong = fmt.Errorf("pow: mask exceeds %d characters", MaxMaskLen)

// ErrMaxIterations is returned when no suffix satisfying mask was found
// within MaxIterations attempts.
var ErrMaxIterations = fmt.Errorf("pow: exceeded %d iterations without a solution", MaxIterations)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var suffixBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 4096)
		return &buf
	},
}

// randomASCII fills dst with random ASCII characters drawn from alphabet,
// refilling its entropy pool in 4KiB batches so a hot solve loop is not
// making a crypto/rand syscall per candidate.
type randomASCII struct {
	pool *[]byte
	pos  int
}

func newRandomASCII() *randomASCII {
	buf := suffixBufPool.Get().(*[]byte)
	*buf = (*buf)[:cap(*buf)]
	return &randomASCII{pool: buf, pos: len(*buf)}
}

func (r *randomASCII) release() {
	suffixBufPool.Put(r.pool)
}

func (r *randomASCII) next(dst []byte) error {
	for i := range dst {
		if r.pos >= len(*r.pool) {
			if _, err := rand.Read(*r.pool); err != nil {
				return err
			}
			r.pos = 0
		}
		dst[i] = alphabet[(*r.pool)[r.pos]%byte(len(alphabet))]
		r.pos++
	}
	return nil
}

// Solve searches for a 16-byte solution S = key||R such that the lowercase
// hex of MurmurHash3_x64_128(S), seeded with seed, starts with mask. S is a
// fixed 16-byte buffer: key occupies the prefix and only the trailing
// 16-len(key) bytes of R are refilled between attempts. It does not
// allocate per iteration beyond the fixed-size scratch buffers built up
// front.
func Solve(mask, key string, seed int64) (string, error) {
	if len(mask) > MaxMaskLen {
		return "", ErrMaskTooLong
	}
	if len(key) > suffixLen {
		return "", fmt.Errorf("pow: key exceeds %d bytes", suffixLen)
	}

	s := seedPair(seed)
	candidate := make([]byte, suffixLen)
	copy(candidate, key)
	suffix := candidate[len(key):]
	hexBuf := make([]byte, 32)

	gen := newRandomASCII()
	defer gen.release()

	for i := 0; i < MaxIterations; i++ {
		if err := gen.next(suffix); err != nil {
			return "", err
		}
		h1, h2 := murmur3.SeedSum128(s.lo, s.hi, candidate)
		encodeHex128(hexBuf, h1, h2)
		if hasPrefix(hexBuf, mask) {
			return string(candidate), nil
		}
	}
	return "", ErrMaxIterations
}

type seed128 struct{ lo, hi uint64 }

func seedPair(seed int64) seed128 {
	u := uint64(seed)
	return seed128{lo: u, hi: u}
}

// encodeHex128 renders h1||h2 (big-endian within each half, as murmur3's
// SeedSum128 returns them) into 32 lowercase hex characters without
// allocating.
func encodeHex128(dst []byte, h1, h2 uint64) {
	var raw [16]byte
	putUint64(raw[0:8], h1)
	putUint64(raw[8:16], h2)
	hex.Encode(dst, raw[:])
}

func putUint64(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func hasPrefix(hexBuf []byte, mask string) bool {
	if len(mask) > len(hexBuf) {
		return false
	}
	for i := 0; i < len(mask); i++ {
		if hexBuf[i] != mask[i] {
			return false
		}
	}
	return true
}
