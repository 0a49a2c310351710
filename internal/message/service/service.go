package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/resilience"
	consentdomain "github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
	consentservice "github.com/AlibekovAA/dh-trust/backend/internal/consent/service"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
	"github.com/AlibekovAA/dh-trust/backend/internal/signature"
)

const (
	EventMessage        = "message"
	EventConsentRequest = "consent_request"
)

type IdentityLookup interface {
	Get(ctx context.Context, handle string) (identitydomain.Identity, error)
}

type ConsentGate interface {
	Evaluate(ctx context.Context, from, to, payloadType, text string) (consentservice.Decision, error)
	Accept(ctx context.Context, owner, requester string) (consentdomain.Record, error)
	Block(ctx context.Context, owner, target string) (consentdomain.Record, error)
}

// Notifier pushes best-effort realtime events to a connected user.
type Notifier interface {
	Notify(ctx context.Context, to, event string, payload any)
}

type Options struct {
	SystemHandles []string
}

type Service struct {
	store       repository.Store
	identities  IdentityLookup
	consent     ConsentGate
	signatures  *signature.Policy
	notifier    Notifier
	breaker     *resilience.CircuitBreaker
	idGenerator commoncrypto.IDGenerator
	clock       clock.Clock
	log         *logger.Logger
	system      map[string]struct{}
}

func NewService(
	store repository.Store,
	identities IdentityLookup,
	consent ConsentGate,
	signatures *signature.Policy,
	notifier Notifier,
	breaker *resilience.CircuitBreaker,
	idGenerator commoncrypto.IDGenerator,
	opts Options,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	system := make(map[string]struct{}, len(opts.SystemHandles))
	for _, h := range opts.SystemHandles {
		system[h] = struct{}{}
	}
	return &Service{
		store:       store,
		identities:  identities,
		consent:     consent,
		signatures:  signatures,
		notifier:    notifier,
		breaker:     breaker,
		idGenerator: idGenerator,
		clock:       clk,
		log:         log,
		system:      system,
	}
}

func (s *Service) IsSystem(handle string) bool {
	_, ok := s.system[handle]
	return ok
}

type SendInput struct {
	ID        string
	From      string
	To        string
	Text      string
	Payload   json.RawMessage
	Version   json.Number
	Nonce     string
	Signature string
	// Body is the decoded request object the signature was computed over.
	Body map[string]any
}

type SendResult struct {
	Message   domain.Message
	Duplicate bool
}

func (s *Service) Send(ctx context.Context, input SendInput) (SendResult, error) {
	result, err := s.send(ctx, input)
	if err != nil {
		metrics.MessagesRejectedTotal.WithLabelValues(rejectCode(err)).Inc()
	}
	return result, err
}

func (s *Service) send(ctx context.Context, input SendInput) (SendResult, error) {
	msg, payload, err := s.validate(input)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"from":   input.From,
			"to":     input.To,
			"action": "send_validation_failed",
		}).Warnf("send validation failed: %v", err)
		return SendResult{}, err
	}

	if msg.ID != "" {
		if existing, ok, err := s.lookup(ctx, msg.ID); err != nil {
			return SendResult{}, err
		} else if ok {
			return s.duplicate(ctx, existing, msg.From)
		}
	} else {
		id, err := s.idGenerator.NewID()
		if err != nil {
			return SendResult{}, commonerrors.ErrInternalError.WithCause(err)
		}
		msg.ID = id
	}

	sender, err := s.resolve(ctx, msg.From)
	if err != nil {
		return SendResult{}, err
	}
	if sender != nil && sender.IsRevoked() {
		return SendResult{}, commonerrors.ErrIdentityRevoked
	}
	recipient, err := s.resolve(ctx, msg.To)
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			return SendResult{}, commonerrors.ErrRecipientNotFound
		}
		return SendResult{}, err
	}
	if sender == nil && recipient == nil {
		return SendResult{}, commonerrors.ErrInvalidRecipient
	}

	if sender != nil {
		verification, err := s.signatures.Apply(ctx, msg.From, input.Body, sender.PublicKey)
		if err != nil {
			return SendResult{}, err
		}
		if verification != nil {
			verified := verification.Verified
			msg.SignatureVerified = &verified
			msg.SignatureReason = verification.Reason
		}
	}

	decision, err := s.consent.Evaluate(ctx, msg.From, msg.To, msg.PayloadType(), msg.Text)
	if err != nil {
		return SendResult{}, err
	}
	msg.Consent = domain.ConsentAccepted
	if decision.State == consentdomain.StatePending {
		msg.Consent = domain.ConsentPending
	}
	msg.CreatedAt = s.clock.Now().UTC()

	stored := true
	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		err := s.store.Save(ctx, msg)
		if errors.Is(err, repository.ErrDuplicateID) {
			stored = false
			return nil
		}
		return err
	})
	if err == nil && !stored {
		existing, ok, err := s.lookup(ctx, msg.ID)
		if err != nil {
			return SendResult{}, err
		}
		if !ok {
			return SendResult{}, commonerrors.ErrMessageIDConflict
		}
		return s.duplicate(ctx, existing, msg.From)
	}
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"message_id": msg.ID,
			"action":     "message_save_failed",
		}).Errorf("failed to save message: %v", err)
		return SendResult{}, err
	}

	if cp, ok := payload.(domain.ConsentPayload); ok {
		s.applyConsentAction(ctx, msg, cp)
	}

	metrics.MessagesSentTotal.WithLabelValues(string(msg.Consent)).Inc()
	s.log.WithFields(ctx, logger.Fields{
		"message_id":    msg.ID,
		"from":          msg.From,
		"to":            msg.To,
		"consent":       string(msg.Consent),
		"grandfathered": decision.Grandfathered,
		"action":        "message_sent",
	}).Info("message stored")

	event := EventMessage
	if msg.Consent == domain.ConsentPending {
		event = EventConsentRequest
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, msg.To, event, msg)
	}

	return SendResult{Message: msg}, nil
}

func (s *Service) validate(input SendInput) (domain.Message, domain.Payload, error) {
	from, err := identitydomain.NormalizeHandle(input.From)
	if err != nil {
		return domain.Message{}, nil, err
	}
	to, err := identitydomain.NormalizeHandle(input.To)
	if err != nil {
		return domain.Message{}, nil, commonerrors.ErrInvalidRecipient.WithCause(err)
	}
	if from == to {
		return domain.Message{}, nil, commonerrors.ErrInvalidRecipient
	}

	if utf8.RuneCountInString(input.Text) > constants.MaxMessageLength {
		return domain.Message{}, nil, commonerrors.ErrMessageTooLong.WithDetails(map[string]any{"max": constants.MaxMessageLength})
	}
	if strings.TrimSpace(input.Text) == "" && len(input.Payload) == 0 {
		return domain.Message{}, nil, commonerrors.ErrEmptyMessage
	}
	if len(input.ID) > constants.MaxClientMessageIDLen || strings.TrimSpace(input.ID) != input.ID {
		return domain.Message{}, nil, commonerrors.ErrInvalidMessageID
	}

	var payload domain.Payload
	if len(input.Payload) > 0 {
		payload, err = domain.ParsePayload(input.Payload)
		if err != nil {
			return domain.Message{}, nil, err
		}
	}

	msg := domain.Message{
		ID:        input.ID,
		From:      from,
		To:        to,
		Text:      input.Text,
		Payload:   input.Payload,
		Version:   input.Version,
		Nonce:     input.Nonce,
		Signature: input.Signature,
	}
	if ts, ok := signature.ParseTimestamp(input.Body["timestamp"]); ok {
		msg.Timestamp = ts
	}
	return msg, payload, nil
}

// resolve returns nil for a system handle without a registered identity.
func (s *Service) resolve(ctx context.Context, handle string) (*identitydomain.Identity, error) {
	identity, err := s.identities.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) && s.IsSystem(handle) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

func (s *Service) duplicate(ctx context.Context, existing domain.Message, from string) (SendResult, error) {
	if existing.From != from {
		s.log.WithFields(ctx, logger.Fields{
			"message_id": existing.ID,
			"from":       from,
			"action":     "message_id_conflict",
		}).Warn("message id owned by another sender")
		return SendResult{}, commonerrors.ErrMessageIDConflict
	}
	metrics.MessageDuplicatesTotal.Inc()
	s.log.WithFields(ctx, logger.Fields{
		"message_id": existing.ID,
		"action":     "message_duplicate",
	}).Info("idempotent resubmission answered from storage")
	return SendResult{Message: existing, Duplicate: true}, nil
}

func (s *Service) applyConsentAction(ctx context.Context, msg domain.Message, payload domain.ConsentPayload) {
	var err error
	switch payload.Action {
	case domain.ConsentActionAccept:
		_, err = s.consent.Accept(ctx, msg.From, msg.To)
	case domain.ConsentActionBlock:
		_, err = s.consent.Block(ctx, msg.From, msg.To)
	default:
		return
	}
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"message_id": msg.ID,
			"consent":    payload.Action,
			"action":     "consent_payload_failed",
		}).Warnf("consent payload not applied: %v", err)
	}
}

func (s *Service) lookup(ctx context.Context, id string) (domain.Message, bool, error) {
	var (
		msg domain.Message
		ok  bool
	)
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		msg, ok, err = s.store.Get(ctx, id)
		return err
	})
	return msg, ok, err
}

func (s *Service) list(ctx context.Context, listKey string, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		ids, err := s.store.List(ctx, listKey, limit)
		if err != nil {
			return err
		}
		msgs, err = s.store.GetMany(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Service) markRead(ctx context.Context, msgs []domain.Message, match func(domain.Message) bool) error {
	var ids []string
	for _, m := range msgs {
		if !m.Read && match(m) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	at := s.clock.Now().UTC()
	if err := s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.store.MarkRead(ctx, ids, at)
	}); err != nil {
		return err
	}
	for i := range msgs {
		if !msgs[i].Read && match(msgs[i]) {
			msgs[i].Read = true
			msgs[i].ReadAt = &at
		}
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		return constants.MaxListLimit
	}
	return limit
}

// Inbox lists messages received by user, newest first.
func (s *Service) Inbox(ctx context.Context, user string, limit int, markRead bool) ([]domain.Message, error) {
	msgs, err := s.list(ctx, domain.InboxKey(user), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if markRead {
		if err := s.markRead(ctx, msgs, func(m domain.Message) bool { return m.To == user }); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Outbox lists messages sent by user, newest first.
func (s *Service) Outbox(ctx context.Context, user string, limit int) ([]domain.Message, error) {
	return s.list(ctx, domain.OutboxKey(user), clampLimit(limit))
}

// Thread returns the conversation between user and other, oldest first.
// Messages from other to user are marked read.
func (s *Service) Thread(ctx context.Context, user, other string, limit int) ([]domain.Message, error) {
	if user == other {
		return nil, commonerrors.ErrInvalidRecipient
	}
	msgs, err := s.list(ctx, domain.ThreadKey(user, other), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if err := s.markRead(ctx, msgs, func(m domain.Message) bool { return m.From == other && m.To == user }); err != nil {
		return nil, err
	}
	return msgs, nil
}

func rejectCode(err error) string {
	if code := commonerrors.CodeOf(err); code != "" {
		return code
	}
	return "internal_error"
}
