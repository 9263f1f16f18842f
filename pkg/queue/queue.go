// Package queue is the durable outbox of chat notifications. Producers append
// inside their own transactions; delivery workers claim disjoint batches with
// a lock-and-skip select followed by a time-bounded lease.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultClaimTTL = 5 * time.Minute

// ErrLeaseLost is returned by Extend, MarkSent and Release when the claim
// token no longer owns the message.
var ErrLeaseLost = errors.New("queue: lease lost")

// Message is a claimed queue entry.
type Message struct {
	ID          string
	RecipientID string
	Body        string
	Action      *ActionPayload
	CreatedAt   time.Time
	Attempts    int
	ClaimToken  string
}

type Queue struct {
	db          *gorm.DB
	now         func() time.Time
	claimTTL    time.Duration
	maxAttempts int
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithClaimTTL sets how long a claim keeps other workers away. A worker that
// dies mid-batch makes its messages claimable again after this long.
func WithClaimTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.claimTTL = ttl
		}
	}
}

// WithMaxAttempts dead-letters a message after n failed dispatches. Zero
// retries forever.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) { q.maxAttempts = n }
}

func New(gdb *gorm.DB, opts ...Option) *Queue {
	q := &Queue{db: gdb, now: time.Now, claimTTL: DefaultClaimTTL}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a message in its own transaction and returns its id.
func (q *Queue) Enqueue(ctx context.Context, recipientID, body string, action *ActionPayload) (string, error) {
	return q.EnqueueTx(q.db.WithContext(ctx), recipientID, body, action)
}

// EnqueueTx appends a message using tx, so the message commits or rolls back
// together with the caller's state change.
func (q *Queue) EnqueueTx(tx *gorm.DB, recipientID, body string, action *ActionPayload) (string, error) {
	if recipientID == "" {
		return "", errs.Constraint(errs.RuleInvalidInput, "empty recipient")
	}
	raw, err := encodeAction(action)
	if err != nil {
		return "", errs.Constraint(errs.RuleInvalidInput, "action payload: "+err.Error())
	}
	row := db.QueuedMessage{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Body:        body,
		Action:      raw,
		CreatedAt:   q.now().UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return "", errs.Storage("enqueue message", err)
	}
	return row.ID, nil
}

func claimable(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where("sent = ? AND dead_at IS NULL AND (claimed_until IS NULL OR claimed_until < ?)", false, now)
}

// Claim leases up to limit unsent messages, oldest first. Rows locked or
// leased by another worker are skipped, so concurrent claimers receive
// disjoint batches.
func (q *Queue) Claim(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := q.now().UTC()
	token := uuid.NewString()
	until := now.Add(q.claimTTL)

	var rows []db.QueuedMessage
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := claimable(tx.Model(&db.QueuedMessage{}), now).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		// Re-check claimability in the update so a lease taken between the
		// select and here is never overwritten.
		if err := claimable(tx.Model(&db.QueuedMessage{}), now).
			Where("id IN ?", ids).
			Updates(map[string]any{"claim_token": token, "claimed_until": until}).Error; err != nil {
			return err
		}
		return tx.Where("claim_token = ?", token).
			Order("created_at ASC, id ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, errs.Storage("claim messages", err)
	}

	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		action, err := decodeAction(row.Action)
		if err != nil {
			// Keep delivering the text; a broken keyboard must not wedge the queue.
			logger.Warn("dropping undecodable action payload", "message_id", row.ID, "error", err)
		}
		out = append(out, Message{
			ID:          row.ID,
			RecipientID: row.RecipientID,
			Body:        row.Body,
			Action:      action,
			CreatedAt:   row.CreatedAt,
			Attempts:    row.Attempts,
			ClaimToken:  token,
		})
	}
	return out, nil
}

// ClaimTTL is how long a claim lasts unless renewed with Extend.
func (q *Queue) ClaimTTL() time.Duration {
	return q.claimTTL
}

// Extend renews the lease on a claimed message for another ClaimTTL, counted
// from now. Workers call it while a dispatch is in flight so a slow send never
// lets a second worker claim the same row.
func (q *Queue) Extend(ctx context.Context, msg Message) error {
	until := q.now().UTC().Add(q.claimTTL)
	res := q.db.WithContext(ctx).Model(&db.QueuedMessage{}).
		Where("id = ? AND claim_token = ? AND sent = ?", msg.ID, msg.ClaimToken, false).
		Update("claimed_until", until)
	if res.Error != nil {
		return errs.Storage("extend message lease", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// MarkSent records a successful delivery. It commits on its own so one
// message never waits on its siblings.
func (q *Queue) MarkSent(ctx context.Context, msg Message) error {
	now := q.now().UTC()
	res := q.db.WithContext(ctx).Model(&db.QueuedMessage{}).
		Where("id = ? AND claim_token = ? AND sent = ?", msg.ID, msg.ClaimToken, false).
		Updates(map[string]any{
			"sent":          true,
			"sent_at":       now,
			"claim_token":   nil,
			"claimed_until": nil,
		})
	if res.Error != nil {
		return errs.Storage("mark message sent", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release returns a failed message to the queue, recording the failure. The
// message is dead-lettered once it reaches the configured attempt limit.
func (q *Queue) Release(ctx context.Context, msg Message, cause error) error {
	now := q.now().UTC()
	updates := map[string]any{
		"attempts":      gorm.Expr("attempts + 1"),
		"claim_token":   nil,
		"claimed_until": nil,
	}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	dead := q.maxAttempts > 0 && msg.Attempts+1 >= q.maxAttempts
	if dead {
		updates["dead_at"] = now
	}
	res := q.db.WithContext(ctx).Model(&db.QueuedMessage{}).
		Where("id = ? AND claim_token = ? AND sent = ?", msg.ID, msg.ClaimToken, false).
		Updates(updates)
	if res.Error != nil {
		return errs.Storage("release message", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	if dead {
		logger.Warn("message dead-lettered", "message_id", msg.ID, "attempts", msg.Attempts+1)
	}
	return nil
}

// Pending counts messages still waiting for delivery.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&db.QueuedMessage{}).
		Where("sent = ? AND dead_at IS NULL", false).
		Count(&n).Error
	if err != nil {
		return 0, errs.Storage("count pending messages", err)
	}
	return n, nil
}
