package census

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// frModulus is the BN254 scalar field order as a fixed-width word.
var frModulus = uint256.MustFromBig(fr.Modulus())

var (
	ErrNotCanonical = errors.New("census: value is not a canonical field element")
	ErrOverflow     = errors.New("census: value does not fit in 256 bits")
)

// ParseElement parses a public-signal string into a canonical field
// element. Decimal is the wire convention of snarkjs-style clients;
// 0x-prefixed hex is accepted as well. Values outside [0, r) are
// rejected, never reduced.
func ParseElement(s string) (fr.Element, error) {
	var e fr.Element

	s = strings.TrimSpace(s)
	if s == "" {
		return e, fmt.Errorf("census: empty field element")
	}

	var u *uint256.Int
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		// fixed-width hex with leading zeros is the canonical API form,
		// which uint256.FromHex would reject as a non-minimal quantity
		hs := s[2:]
		if len(hs) == 0 {
			return e, fmt.Errorf("census: bad field element %q", s)
		}
		if len(hs) > 64 {
			return e, ErrOverflow
		}
		if len(hs)%2 == 1 {
			hs = "0" + hs
		}
		raw, err := hex.DecodeString(hs)
		if err != nil {
			return e, fmt.Errorf("census: bad field element %q: %w", s, err)
		}
		u = new(uint256.Int).SetBytes(raw)
	} else {
		var err error
		u, err = uint256.FromDecimal(s)
		if err != nil {
			return e, fmt.Errorf("census: bad field element %q: %w", s, err)
		}
	}
	if u.Cmp(frModulus) >= 0 {
		return e, ErrNotCanonical
	}

	b := u.Bytes32()
	e.SetBytes(b[:])
	return e, nil
}

// ElementToLE32 serializes a field element to exactly 32 bytes,
// little-endian. Field elements are canonical by construction, so the
// value always fits.
func ElementToLE32(e *fr.Element) [32]byte {
	be := e.Bytes()
	var le [32]byte
	for i := 0; i < 32; i++ {
		le[i] = be[31-i]
	}
	return le
}

// LE32ToElement decodes a little-endian 32-byte encoding back into a
// field element, rejecting non-canonical values.
func LE32ToElement(le [32]byte) (fr.Element, error) {
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = le[31-i]
	}
	var e fr.Element
	if err := e.SetBytesCanonical(be[:]); err != nil {
		return e, ErrNotCanonical
	}
	return e, nil
}

// EncodeLE32 serializes an arbitrary 256-bit word little-endian.
// uint256 is fixed-width, so overflow is impossible by type; callers
// converting from wider sources must have validated already.
func EncodeLE32(u *uint256.Int) [32]byte {
	var le [32]byte
	binary.LittleEndian.PutUint64(le[0:8], u[0])
	binary.LittleEndian.PutUint64(le[8:16], u[1])
	binary.LittleEndian.PutUint64(le[16:24], u[2])
	binary.LittleEndian.PutUint64(le[24:32], u[3])
	return le
}

// DecodeLE32 is the inverse of EncodeLE32.
func DecodeLE32(le [32]byte) *uint256.Int {
	var u uint256.Int
	u[0] = binary.LittleEndian.Uint64(le[0:8])
	u[1] = binary.LittleEndian.Uint64(le[8:16])
	u[2] = binary.LittleEndian.Uint64(le[16:24])
	u[3] = binary.LittleEndian.Uint64(le[24:32])
	return &u
}

// ElementHex returns the canonical 0x-prefixed big-endian hex form used
// in API responses.
func ElementHex(e *fr.Element) string {
	b := e.Bytes()
	return hexutil.Encode(b[:])
}

// ElementBytes returns the canonical big-endian 32-byte form used as a
// storage key.
func ElementBytes(e *fr.Element) [32]byte {
	return e.Bytes()
}

// ElementFromBytes decodes a canonical big-endian 32-byte storage key.
func ElementFromBytes(b []byte) (fr.Element, error) {
	var e fr.Element
	if len(b) != 32 {
		return e, fmt.Errorf("census: want 32 bytes, got %d", len(b))
	}
	if err := e.SetBytesCanonical(b); err != nil {
		return e, ErrNotCanonical
	}
	return e, nil
}
