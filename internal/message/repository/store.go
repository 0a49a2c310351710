package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
)

// ErrDuplicateID is returned by Save when a message with the same id exists.
// Nothing is indexed in that case.
var ErrDuplicateID = errors.New("message id already stored")

type Limits struct {
	Inbox  int
	Outbox int
	Thread int
}

// Store persists message blobs and three bounded, newest-first id lists per
// message: recipient inbox, sender outbox and the undirected thread.
type Store interface {
	Save(ctx context.Context, msg domain.Message) error
	Get(ctx context.Context, id string) (domain.Message, bool, error)
	// GetMany returns messages in the order of ids, skipping missing ones.
	GetMany(ctx context.Context, ids []string) ([]domain.Message, error)
	List(ctx context.Context, listKey string, limit int) ([]string, error)
	// MarkRead ignores ids that no longer exist or are already read.
	MarkRead(ctx context.Context, ids []string, at time.Time) error
}

type listBound struct {
	key   string
	limit int
}

func bounds(msg domain.Message, limits Limits) []listBound {
	return []listBound{
		{key: domain.InboxKey(msg.To), limit: limits.Inbox},
		{key: domain.OutboxKey(msg.From), limit: limits.Outbox},
		{key: domain.ThreadKey(msg.From, msg.To), limit: limits.Thread},
	}
}
