package signature

import (
	"crypto/ed25519"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
)

const (
	ReasonValid            = "valid"
	ReasonNoPublicKey      = "no_public_key"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonReplayDetected   = "replay_detected"
	ReasonInvalidSignature = "invalid_signature"
	ReasonMissingSignature = "missing_signature"
)

// Result is recorded on the message whether or not verification passed.
type Result struct {
	Verified bool
	Reason   string
}

type Verifier struct {
	clock  clock.Clock
	window time.Duration
}

func NewVerifier(clk clock.Clock, window time.Duration) *Verifier {
	return &Verifier{clock: clk, window: window}
}

func (v *Verifier) Window() time.Duration {
	return v.window
}

// Verify checks obj, which carries its own signature and millisecond
// timestamp, against publicKey. Checks run in order: key, timestamp,
// signature.
func (v *Verifier) Verify(obj map[string]any, publicKey string) Result {
	if publicKey == "" {
		return Result{Reason: ReasonNoPublicKey}
	}
	key, err := commoncrypto.ParsePublicKey(publicKey)
	if err != nil {
		return Result{Reason: ReasonNoPublicKey}
	}

	ts, ok := ParseTimestamp(obj["timestamp"])
	if !ok {
		return Result{Reason: ReasonInvalidTimestamp}
	}
	if _, within := v.Skew(ts); !within {
		return Result{Reason: ReasonReplayDetected}
	}

	sig := signatureField(obj)
	if sig == "" {
		return Result{Reason: ReasonMissingSignature}
	}
	if !verifyCanonical(StripTransport(obj), sig, key) {
		return Result{Reason: ReasonInvalidSignature}
	}
	return Result{Verified: true, Reason: ReasonValid}
}

// VerifyProof checks signature over the canonical form of fields. Used for
// rotation proofs, which are signed by the recovery key and carry no
// timestamp policy of their own here.
func (v *Verifier) VerifyProof(fields map[string]any, signature string, publicKey string) bool {
	key, err := commoncrypto.ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	return verifyCanonical(fields, signature, key)
}

// Skew returns client minus server time and whether it is inside the window.
func (v *Verifier) Skew(timestampMs int64) (time.Duration, bool) {
	now := v.clock.Now().UnixMilli()
	skew := time.Duration(timestampMs-now) * time.Millisecond
	abs := skew
	if abs < 0 {
		abs = -abs
	}
	return skew, abs <= v.window
}

func verifyCanonical(fields map[string]any, signature string, key ed25519.PublicKey) bool {
	sig, err := commoncrypto.DecodeSignature(signature)
	if err != nil {
		return false
	}
	canonical, err := Canonicalize(fields)
	if err != nil {
		return false
	}
	return ed25519.Verify(key, canonical, sig)
}

func signatureField(obj map[string]any) string {
	if s, ok := obj["signature"].(string); ok && s != "" {
		return s
	}
	if s, ok := obj["sig"].(string); ok {
		return s
	}
	return ""
}

// ParseTimestamp accepts Unix milliseconds as a JSON number or a numeric string.
func ParseTimestamp(v any) (int64, bool) {
	switch ts := v.(type) {
	case json.Number:
		if i, err := ts.Int64(); err == nil {
			return i, i > 0
		}
		f, err := ts.Float64()
		if err != nil || f != math.Trunc(f) || f <= 0 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case float64:
		if ts != math.Trunc(ts) || ts <= 0 || ts > math.MaxInt64 {
			return 0, false
		}
		return int64(ts), true
	case int64:
		return ts, ts > 0
	case string:
		i, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, i > 0
	default:
		return 0, false
	}
}
