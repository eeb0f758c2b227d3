package census_test

import (
	crand "crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/netstatehq/zk-census/census"
)

func TestParseElementDecimalAndHex(t *testing.T) {
	dec, err := census.ParseElement("255")
	require.NoError(t, err)
	hex, err := census.ParseElement("0xff")
	require.NoError(t, err)
	require.True(t, dec.Equal(&hex))
}

func TestParseElementRejectsNonCanonical(t *testing.T) {
	// the field modulus itself is the smallest non-canonical value
	_, err := census.ParseElement(fr.Modulus().String())
	require.ErrorIs(t, err, census.ErrNotCanonical)
}

func TestParseElementRejectsOversized(t *testing.T) {
	// 2^256 does not fit in 256 bits; must be rejected, not truncated
	_, err := census.ParseElement("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	require.Error(t, err)

	_, err = census.ParseElement("")
	require.Error(t, err)

	_, err = census.ParseElement("not-a-number")
	require.Error(t, err)
}

func TestLE32RoundTripUint256(t *testing.T) {
	for i := 0; i < 64; i++ {
		var raw [32]byte
		_, err := crand.Read(raw[:])
		require.NoError(t, err)
		u := new(uint256.Int).SetBytes(raw[:])

		le := census.EncodeLE32(u)
		back := census.DecodeLE32(le)
		require.Zero(t, u.Cmp(back))
	}
}

func TestLE32ByteOrder(t *testing.T) {
	u := uint256.NewInt(0x0102)
	le := census.EncodeLE32(u)
	require.Equal(t, byte(0x02), le[0])
	require.Equal(t, byte(0x01), le[1])
	for i := 2; i < 32; i++ {
		require.Zero(t, le[i])
	}
}

func TestElementLE32RoundTrip(t *testing.T) {
	for i := 0; i < 32; i++ {
		var e fr.Element
		_, err := e.SetRandom()
		require.NoError(t, err)

		le := census.ElementToLE32(&e)
		back, err := census.LE32ToElement(le)
		require.NoError(t, err)
		require.True(t, e.Equal(&back))
	}
}

func TestLE32ToElementRejectsNonCanonical(t *testing.T) {
	var le [32]byte
	for i := range le {
		le[i] = 0xff
	}
	_, err := census.LE32ToElement(le)
	require.ErrorIs(t, err, census.ErrNotCanonical)
}

func TestElementBytesRoundTrip(t *testing.T) {
	var e fr.Element
	_, err := e.SetRandom()
	require.NoError(t, err)

	b := census.ElementBytes(&e)
	back, err := census.ElementFromBytes(b[:])
	require.NoError(t, err)
	require.True(t, e.Equal(&back))

	_, err = census.ElementFromBytes(b[:16])
	require.Error(t, err)
}
