package service

import (
	"context"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
	consentrepo "github.com/AlibekovAA/dh-trust/backend/internal/consent/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

// HistoryReader returns the most recent thread messages between two handles.
type HistoryReader interface {
	ThreadHistory(ctx context.Context, a, b string, limit int) ([]domain.HistoryEntry, error)
}

type Decision struct {
	State         domain.State
	Bypassed      bool
	Grandfathered bool
	// Requested is set when this send opened or refreshed a pending request.
	Requested bool
}

type Options struct {
	SystemHandles      []string
	GrandfatherPending bool
}

type Engine struct {
	repo    consentrepo.Repository
	history HistoryReader
	clock   clock.Clock
	log     *logger.Logger
	system  map[string]struct{}
	opts    Options
}

func NewEngine(repo consentrepo.Repository, history HistoryReader, opts Options, clk clock.Clock, log *logger.Logger) *Engine {
	system := make(map[string]struct{}, len(opts.SystemHandles))
	for _, h := range opts.SystemHandles {
		system[h] = struct{}{}
	}
	return &Engine{
		repo:    repo,
		history: history,
		clock:   clk,
		log:     log,
		system:  system,
		opts:    opts,
	}
}

func (e *Engine) IsSystem(handle string) bool {
	_, ok := e.system[handle]
	return ok
}

// Evaluate decides whether a send from -> to is delivered or gated. A blocked
// pair returns ErrConsentBlocked and the caller must not store the message.
func (e *Engine) Evaluate(ctx context.Context, from, to, payloadType, text string) (Decision, error) {
	if e.IsSystem(from) || e.IsSystem(to) || payloadType == "consent" {
		return Decision{State: domain.StateAccepted, Bypassed: true}, nil
	}

	record, err := e.repo.Get(ctx, from, to)
	if err != nil {
		return Decision{}, err
	}

	switch record.State {
	case domain.StateBlocked:
		e.log.WithFields(ctx, logger.Fields{
			"from":   from,
			"to":     to,
			"action": "consent_blocked",
		}).Info("send refused by block")
		return Decision{}, commonerrors.ErrConsentBlocked
	case domain.StateAccepted:
		return Decision{State: domain.StateAccepted}, nil
	}

	prior, err := e.hasPriorHistory(ctx, from, to)
	if err != nil {
		return Decision{}, err
	}
	if prior {
		if err := e.grandfather(ctx, record, from, to); err != nil {
			return Decision{}, err
		}
		return Decision{State: domain.StateAccepted, Grandfathered: true}, nil
	}

	now := e.clock.Now().UTC()
	opened := record.RequestedAt == nil
	if opened {
		record.RequestedAt = &now
	}
	record.State = domain.StatePending
	record.Preview = domain.Preview(text)
	record.UpdatedAt = now
	if err := e.repo.Put(ctx, record); err != nil {
		return Decision{}, err
	}
	if opened {
		metrics.ConsentTransitionsTotal.WithLabelValues(string(domain.StateNone), string(domain.StatePending), "first_contact").Inc()
	}

	e.log.WithFields(ctx, logger.Fields{
		"from":   from,
		"to":     to,
		"action": "consent_pending",
	}).Info("first contact gated pending consent")

	return Decision{State: domain.StatePending, Requested: true}, nil
}

func (e *Engine) hasPriorHistory(ctx context.Context, from, to string) (bool, error) {
	if e.history == nil {
		return false, nil
	}
	entries, err := e.history.ThreadHistory(ctx, from, to, constants.ConsentHistoryDepth)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.ConsentPayload {
			continue
		}
		if entry.ConsentAtSend != string(domain.StatePending) {
			return true, nil
		}
		// A pending message only counts as a reply from the recipient.
		if e.opts.GrandfatherPending && entry.From == to {
			return true, nil
		}
	}
	return false, nil
}

// grandfather accepts both directions of a pair with prior history. A blocked
// reverse record is left as is.
func (e *Engine) grandfather(ctx context.Context, forward domain.Record, from, to string) error {
	now := e.clock.Now().UTC()

	reverse, err := e.repo.Get(ctx, to, from)
	if err != nil {
		return err
	}

	for _, record := range []domain.Record{forward, reverse} {
		if record.State == domain.StateBlocked || record.State == domain.StateAccepted {
			continue
		}
		previous := record.State
		record.State = domain.StateAccepted
		record.Grandfathered = true
		record.RespondedAt = &now
		record.UpdatedAt = now
		if err := e.repo.Put(ctx, record); err != nil {
			return err
		}
		metrics.ConsentTransitionsTotal.WithLabelValues(string(previous), string(domain.StateAccepted), "grandfathered").Inc()
	}

	e.log.WithFields(ctx, logger.Fields{
		"from":   from,
		"to":     to,
		"action": "consent_grandfathered",
	}).Info("existing thread grandfathered")
	return nil
}

// Accept records owner's consent to receive from requester. The owner is
// implicitly willing to write back, so a reverse record that is not blocked
// is accepted too.
func (e *Engine) Accept(ctx context.Context, owner, requester string) (domain.Record, error) {
	if owner == requester {
		return domain.Record{}, commonerrors.ErrInvalidRecipient
	}

	record, err := e.repo.Get(ctx, requester, owner)
	if err != nil {
		return domain.Record{}, err
	}
	if record.State == domain.StateNone {
		return domain.Record{}, commonerrors.ErrConsentNotFound
	}
	if record.State == domain.StateAccepted {
		return record, nil
	}

	now := e.clock.Now().UTC()
	previous := record.State
	record = e.transition(record, domain.StateAccepted, now)
	if err := e.repo.Put(ctx, record); err != nil {
		return domain.Record{}, err
	}
	metrics.ConsentTransitionsTotal.WithLabelValues(string(previous), string(domain.StateAccepted), "accept").Inc()

	reverse, err := e.repo.Get(ctx, owner, requester)
	if err != nil {
		return domain.Record{}, err
	}
	if reverse.State == domain.StateNone || reverse.State == domain.StatePending {
		if err := e.repo.Put(ctx, e.transition(reverse, domain.StateAccepted, now)); err != nil {
			return domain.Record{}, err
		}
	}

	e.log.WithFields(ctx, logger.Fields{
		"owner":     owner,
		"requester": requester,
		"action":    "consent_accepted",
	}).Info("consent accepted")
	return record, nil
}

// Block refuses all further sends from target to owner. It needs no prior
// record and no agreement from target.
func (e *Engine) Block(ctx context.Context, owner, target string) (domain.Record, error) {
	if owner == target {
		return domain.Record{}, commonerrors.ErrInvalidRecipient
	}

	record, err := e.repo.Get(ctx, target, owner)
	if err != nil {
		return domain.Record{}, err
	}
	if record.State == domain.StateBlocked {
		return record, nil
	}

	previous := record.State
	record = e.transition(record, domain.StateBlocked, e.clock.Now().UTC())
	if err := e.repo.Put(ctx, record); err != nil {
		return domain.Record{}, err
	}
	metrics.ConsentTransitionsTotal.WithLabelValues(string(previous), string(domain.StateBlocked), "block").Inc()

	e.log.WithFields(ctx, logger.Fields{
		"owner":  owner,
		"target": target,
		"action": "consent_blocked_by_owner",
	}).Info("sender blocked")
	return record, nil
}

func (e *Engine) transition(record domain.Record, state domain.State, now time.Time) domain.Record {
	record.State = state
	record.RespondedAt = &now
	record.UpdatedAt = now
	return record
}

func (e *Engine) Pending(ctx context.Context, owner string, limit int) ([]domain.Record, error) {
	if limit <= 0 || limit > constants.MaxListLimit {
		limit = constants.DefaultListLimit
	}
	return e.repo.ListByRecipient(ctx, owner, domain.StatePending, limit)
}

func (e *Engine) Get(ctx context.Context, from, to string) (domain.Record, error) {
	return e.repo.Get(ctx, from, to)
}
