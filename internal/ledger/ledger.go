// Package ledger owns account balances. Every cent that moves in the engine
// moves through here, paired with an audit entry naming why.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aurayield/engine/internal/domain"
)

// Ledger wraps the account store with activity checks and audit logging.
type Ledger struct {
	accounts domain.AccountStore
	audit    domain.AuditStore
	logger   *slog.Logger
}

// New creates a Ledger.
func New(accounts domain.AccountStore, audit domain.AuditStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		accounts: accounts,
		audit:    audit,
		logger:   logger,
	}
}

// GetOrCreate returns the account for handle, creating it on first contact
// with a zero balance and the base Aura score.
func (l *Ledger) GetOrCreate(ctx context.Context, handle string) (domain.Account, error) {
	acct, err := l.accounts.GetByHandle(ctx, handle)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("ledger: get account by handle: %w", err)
	}

	now := time.Now().UTC()
	acct = domain.Account{
		ID:        uuid.NewString(),
		Handle:    handle,
		Aura:      100,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost the creation race; the other writer's row wins.
			return l.accounts.GetByHandle(ctx, handle)
		}
		return domain.Account{}, fmt.Errorf("ledger: create account: %w", err)
	}

	l.logger.InfoContext(ctx, "account created",
		slog.String("account_id", acct.ID),
		slog.String("handle", handle))
	l.logAudit(ctx, "account_created", map[string]any{"account_id": acct.ID, "handle": handle})
	return acct, nil
}

// Get returns an account by id.
func (l *Ledger) Get(ctx context.Context, id string) (domain.Account, error) {
	acct, err := l.accounts.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger: get account: %w", err)
	}
	return acct, nil
}

// Debit removes amountCents from an active account. Returns
// ErrInsufficientFunds when the balance cannot cover it.
func (l *Ledger) Debit(ctx context.Context, id string, amountCents int64, reason string) error {
	if amountCents <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := l.requireActive(ctx, id); err != nil {
		return err
	}
	if err := l.accounts.Debit(ctx, id, amountCents); err != nil {
		return fmt.Errorf("ledger: debit %s: %w", reason, err)
	}
	l.logAudit(ctx, "debit", map[string]any{"account_id": id, "amount_cents": amountCents, "reason": reason})
	return nil
}

// Credit adds amountCents to an account. Credits are allowed on deactivated
// accounts so settlement can always pay out.
func (l *Ledger) Credit(ctx context.Context, id string, amountCents int64, reason string) error {
	if amountCents <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := l.accounts.Credit(ctx, id, amountCents); err != nil {
		return fmt.Errorf("ledger: credit %s: %w", reason, err)
	}
	l.logAudit(ctx, "credit", map[string]any{"account_id": id, "amount_cents": amountCents, "reason": reason})
	return nil
}

// CreditOnce credits amountCents at most once for the given idempotency key.
// Settlement code keys credits by the entity being settled so an aborted
// settlement can be retried without paying anyone twice.
func (l *Ledger) CreditOnce(ctx context.Context, id string, amountCents int64, reason, key string) error {
	if amountCents <= 0 {
		return domain.ErrInvalidAmount
	}
	applied, err := l.accounts.CreditOnce(ctx, id, amountCents, key)
	if err != nil {
		return fmt.Errorf("ledger: credit %s: %w", reason, err)
	}
	if !applied {
		l.logger.DebugContext(ctx, "credit already applied", slog.String("key", key))
		return nil
	}
	l.logAudit(ctx, "credit", map[string]any{
		"account_id": id, "amount_cents": amountCents, "reason": reason, "key": key,
	})
	return nil
}

// Transfer moves amountCents between two accounts atomically.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amountCents int64, reason string) error {
	if amountCents <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := l.accounts.Transfer(ctx, fromID, toID, amountCents); err != nil {
		return fmt.Errorf("ledger: transfer %s: %w", reason, err)
	}
	l.logAudit(ctx, "transfer", map[string]any{
		"from": fromID, "to": toID, "amount_cents": amountCents, "reason": reason,
	})
	return nil
}

// AddLifetime bumps the lifetime staked/earned counters shown on profiles.
func (l *Ledger) AddLifetime(ctx context.Context, id string, stakedDelta, earnedDelta int64) error {
	if err := l.accounts.AddLifetime(ctx, id, stakedDelta, earnedDelta); err != nil {
		return fmt.Errorf("ledger: add lifetime: %w", err)
	}
	return nil
}

// ConnectSource records that the account linked a wearable source.
func (l *Ledger) ConnectSource(ctx context.Context, id string, source domain.SourceID) error {
	if _, err := domain.SourceByID(source); err != nil {
		return err
	}
	if err := l.requireActive(ctx, id); err != nil {
		return err
	}
	if err := l.accounts.AddSource(ctx, id, source); err != nil {
		return fmt.Errorf("ledger: connect source: %w", err)
	}
	l.logger.InfoContext(ctx, "source connected",
		slog.String("account_id", id),
		slog.String("source", string(source)))
	l.logAudit(ctx, "source_connected", map[string]any{"account_id": id, "source": string(source)})
	return nil
}

// HasSource reports whether the account has linked the given source.
func (l *Ledger) HasSource(ctx context.Context, id string, source domain.SourceID) (bool, error) {
	ok, err := l.accounts.HasSource(ctx, id, source)
	if err != nil {
		return false, fmt.Errorf("ledger: has source: %w", err)
	}
	return ok, nil
}

// Deactivate marks the account inactive. Existing stakes and wagers continue
// to settle; the account just cannot open new positions.
func (l *Ledger) Deactivate(ctx context.Context, id string) error {
	if err := l.accounts.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("ledger: deactivate account: %w", err)
	}
	l.logAudit(ctx, "account_deactivated", map[string]any{"account_id": id})
	return nil
}

func (l *Ledger) requireActive(ctx context.Context, id string) error {
	acct, err := l.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ledger: get account: %w", err)
	}
	if !acct.Active {
		return domain.ErrAccountInactive
	}
	return nil
}

// logAudit records an audit entry, logging and swallowing failures; money
// movement does not fail because the audit trail hiccupped.
func (l *Ledger) logAudit(ctx context.Context, event string, detail map[string]any) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Log(ctx, event, detail); err != nil {
		l.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event), slog.Any("error", err))
	}
}
