package ledger

import (
	"fmt"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SecretSize is the byte length of session ids, admin secrets and voter
// tokens.
const SecretSize = 32

// NewSecret returns SecretSize random bytes as 0x-prefixed hex.
func NewSecret() (string, error) {
	s, err := common.MakeRandHexString(SecretSize)
	if err != nil {
		return "", err
	}
	return "0x" + s, nil
}

// NewSecrets returns n fresh secrets.
func NewSecrets(n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := NewSecret()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Fingerprint returns the keccak256 hash of a secret, the form in which the
// ledger stores admin secrets and voter tokens. The same value is the only
// trace of a token kept in the local store.
func Fingerprint(secret string) (string, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(raw).Hex(), nil
}

// DecodeSecret parses a 0x-hex secret of exactly SecretSize bytes.
func DecodeSecret(secret string) ([]byte, error) {
	raw, err := hexutil.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("malformed secret: %w", err)
	}
	if len(raw) != SecretSize {
		return nil, fmt.Errorf("malformed secret: want %d bytes, got %d", SecretSize, len(raw))
	}
	return raw, nil
}
