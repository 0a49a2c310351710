package signature

import (
	"context"
	"fmt"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

type Enforcement string

const (
	EnforcementOff    Enforcement = "off"
	EnforcementLog    Enforcement = "log"
	EnforcementReject Enforcement = "reject"
)

func ParseEnforcement(value string) (Enforcement, error) {
	switch e := Enforcement(value); e {
	case EnforcementOff, EnforcementLog, EnforcementReject:
		return e, nil
	default:
		return "", fmt.Errorf("%w: unknown signature enforcement %q", commonerrors.ErrInvalidConfig, value)
	}
}

// Policy applies the configured enforcement level to message signatures.
type Policy struct {
	enforcement Enforcement
	verifier    *Verifier
	log         *logger.Logger
}

func NewPolicy(enforcement Enforcement, verifier *Verifier, log *logger.Logger) *Policy {
	return &Policy{enforcement: enforcement, verifier: verifier, log: log}
}

func (p *Policy) Enforcement() Enforcement {
	return p.enforcement
}

// Apply returns nil when verification is skipped: enforcement off, or an
// unsigned message under log. Under reject a missing or failed signature
// becomes the matching 401 error.
func (p *Policy) Apply(ctx context.Context, sender string, obj map[string]any, publicKey string) (*Result, error) {
	if p.enforcement == EnforcementOff {
		return nil, nil
	}

	if signatureField(obj) == "" {
		if p.enforcement == EnforcementReject {
			metrics.SignatureVerificationsTotal.WithLabelValues(string(p.enforcement), ReasonMissingSignature).Inc()
			return nil, commonerrors.ErrInvalidSignature.WithDetails(map[string]any{"reason": ReasonMissingSignature})
		}
		return nil, nil
	}

	result := p.verifier.Verify(obj, publicKey)
	metrics.SignatureVerificationsTotal.WithLabelValues(string(p.enforcement), result.Reason).Inc()
	if result.Verified {
		return &result, nil
	}

	fields := logger.Fields{
		"sender": sender,
		"reason": result.Reason,
		"policy": string(p.enforcement),
		"action": "signature_verification_failed",
	}
	if p.enforcement == EnforcementReject {
		p.log.WithFields(ctx, fields).Warn("message signature rejected")
		return &result, reasonError(result.Reason)
	}
	p.log.WithFields(ctx, fields).Warn("message signature invalid, delivering unverified")
	return &result, nil
}

func reasonError(reason string) error {
	switch reason {
	case ReasonNoPublicKey:
		return commonerrors.ErrNoPublicKey
	case ReasonInvalidTimestamp:
		return commonerrors.ErrInvalidTimestamp
	case ReasonReplayDetected:
		return commonerrors.ErrReplayDetected
	default:
		return commonerrors.ErrInvalidSignature
	}
}
