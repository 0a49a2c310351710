package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
)

var (
	ErrInvalidEncoding  = errors.New("value is not valid base64 or hex")
	ErrInvalidKeyLength = errors.New("decoded value has wrong length")
)

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeFixed accepts hex or any base64 alphabet/padding variant and requires
// the decoded value to be exactly size bytes.
func decodeFixed(value string, size int) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidEncoding
	}

	if len(value) == size*2 {
		if b, err := hex.DecodeString(value); err == nil {
			return b, nil
		}
	}

	for _, enc := range encodings {
		b, err := enc.DecodeString(value)
		if err != nil {
			continue
		}
		if len(b) != size {
			return nil, ErrInvalidKeyLength
		}
		return b, nil
	}

	return nil, ErrInvalidEncoding
}

func ParsePublicKey(value string) (ed25519.PublicKey, error) {
	b, err := decodeFixed(value, constants.Ed25519PublicKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(b), nil
}

// CanonicalPublicKey re-encodes any accepted key spelling as padded std base64.
func CanonicalPublicKey(value string) (string, error) {
	key, err := ParsePublicKey(value)
	if err != nil {
		return "", err
	}
	return EncodeKey(key), nil
}

func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

func DecodeSignature(value string) ([]byte, error) {
	return decodeFixed(value, constants.Ed25519SignatureSize)
}

func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}
