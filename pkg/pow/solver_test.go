package pow

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twmb/murmur3"
)

func TestSolveFindsMatchingMask(t *testing.T) {
	const mask = "0"
	const key = "user-key"
	solution, err := Solve(mask, key, 42)
	require.NoError(t, err)
	require.Len(t, solution, suffixLen)
	require.True(t, strings.HasPrefix(solution, key), "solution must begin with key")

	h1, h2 := murmur3.SeedSum128(uint64(42), uint64(42), []byte(solution))
	buf := make([]byte, 32)
	encodeHex128(buf, h1, h2)
	require.True(t, strings.HasPrefix(string(buf), mask))
}

func TestSolveRejectsLongMask(t *testing.T) {
	_, err := Solve("abcdef", "key", 1)
	require.ErrorIs(t, err, ErrMaskTooLong)
}

func TestEncodeHex128MatchesStandardHex(t *testing.T) {
	h1, h2 := murmur3.SeedSum128(1, 2, []byte("abc"))
	got := make([]byte, 32)
	encodeHex128(got, h1, h2)

	var raw [16]byte
	putUint64(raw[0:8], h1)
	putUint64(raw[8:16], h2)
	want := hex.EncodeToString(raw[:])

	require.Equal(t, want, string(got))
}
