package verifier

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadOrCreateKeypair reads the signer seed from path, generating and
// persisting a fresh keypair on first run. The file holds the 32-byte
// seed hex-encoded, mode 0600.
func LoadOrCreateKeypair(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		pub, priv, err := ed25519.GenerateKey(crand.Reader)
		if err != nil {
			return nil, nil, err
		}
		enc := hex.EncodeToString(priv.Seed())
		if err := os.WriteFile(path, []byte(enc+"\n"), 0600); err != nil {
			return nil, nil, fmt.Errorf("persist signer keypair: %w", err)
		}
		return pub, priv, nil
	}
	if err != nil {
		return nil, nil, err
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("signer seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}
