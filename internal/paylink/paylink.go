// Package paylink implements shareable payment requests. A link carries a
// fixed amount into its owner's account; paying one is a transfer that also
// flips the link to paid, all in one unit of work.
package paylink

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Altech001/Merite-api/internal/domain"
	"github.com/Altech001/Merite-api/internal/ledger"
	"github.com/Altech001/Merite-api/internal/notify"
	"github.com/Altech001/Merite-api/internal/store"
)

const defaultExpiry = 24 * time.Hour

type Service struct {
	store store.Store
	sink  notify.Sink
	log   *zap.Logger
	now   func() time.Time
}

func New(st store.Store, sink notify.Sink, log *zap.Logger) *Service {
	return &Service{store: st, sink: sink, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create issues a new link for the given amount. A zero expiresIn defaults
// to 24 hours.
func (s *Service) Create(ctx context.Context, accountID int64, amount decimal.Decimal, description string, expiresIn time.Duration) (*domain.PaymentLink, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if expiresIn < 0 {
		return nil, domain.Invalid("expires_in", "must not be negative")
	}
	if expiresIn == 0 {
		expiresIn = defaultExpiry
	}
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}

	expires := s.now().Add(expiresIn)
	link := &domain.PaymentLink{
		AccountID:   accountID,
		Code:        ledger.NewLinkCode(),
		Amount:      amount,
		Description: description,
		Status:      domain.LinkActive,
		ExpiresAt:   &expires,
	}
	if err := s.store.CreatePaymentLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// Pay settles the link: the payer is debited, the owner is credited with a
// payment_received entry, and the link is marked paid, atomically. A link
// can be paid at most once; paying one's own link is rejected.
func (s *Service) Pay(ctx context.Context, payerID int64, code string) (*domain.PaymentLink, error) {
	// Unlocked peek to learn the owner before taking leases.
	peek, err := s.store.PaymentLink(ctx, code)
	if err != nil {
		return nil, err
	}
	if peek.AccountID == payerID {
		return nil, domain.Conflict("cannot pay your own payment link")
	}

	var (
		link    *domain.PaymentLink
		expired bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		first, second := payerID, peek.AccountID
		if first > second {
			first, second = second, first
		}
		a, err := tx.AccountForUpdate(ctx, first)
		if err != nil {
			return err
		}
		b, err := tx.AccountForUpdate(ctx, second)
		if err != nil {
			return err
		}
		payer, owner := a, b
		if payer.ID != payerID {
			payer, owner = b, a
		}
		if !owner.IsActive {
			return domain.Conflict("recipient account is inactive")
		}

		link, err = tx.PaymentLinkForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if link.Status != domain.LinkActive {
			return domain.Conflict("payment link is no longer active")
		}
		// An expired link is marked as such and the mark must survive,
		// so commit this unit of work and reject afterwards.
		if link.ExpiresAt != nil && s.now().After(*link.ExpiresAt) {
			expired = true
			link.Status = domain.LinkExpired
			return tx.UpdatePaymentLink(ctx, link)
		}

		desc := link.Description
		if desc == "" {
			desc = "Payment link " + link.Code
		}
		if _, err := ledger.Apply(ctx, tx, payer, ledger.Entry{
			Kind:           domain.EntryTransferOut,
			Amount:         link.Amount,
			Description:    desc,
			CounterpartyID: &owner.ID,
		}); err != nil {
			return err
		}
		if _, err := ledger.Apply(ctx, tx, owner, ledger.Entry{
			Kind:           domain.EntryPaymentReceived,
			Amount:         link.Amount,
			Description:    desc,
			CounterpartyID: &payer.ID,
		}); err != nil {
			return err
		}

		now := s.now()
		link.Status = domain.LinkPaid
		link.PaidByID = &payer.ID
		link.PaidAt = &now
		return tx.UpdatePaymentLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, domain.Conflict("payment link has expired")
	}

	s.sink.Notify(ctx, link.AccountID, notify.TypePayment, "Payment Received",
		fmt.Sprintf("Your payment link %s was paid: %s.", link.Code, link.Amount.StringFixed(2)),
		map[string]any{"code": link.Code, "payer_id": payerID})
	return link, nil
}

// Cancel deactivates an unpaid link owned by the account.
func (s *Service) Cancel(ctx context.Context, accountID int64, code string) (*domain.PaymentLink, error) {
	var link *domain.PaymentLink
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		link, err = tx.PaymentLinkForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if link.AccountID != accountID {
			return domain.NotFound("payment link", 0)
		}
		if link.Status != domain.LinkActive {
			return domain.Conflict("only active links can be cancelled")
		}
		link.Status = domain.LinkCancelled
		return tx.UpdatePaymentLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Link fetches a single link by code, for anyone holding the code.
func (s *Service) Link(ctx context.Context, code string) (*domain.PaymentLink, error) {
	return s.store.PaymentLink(ctx, code)
}

// Links lists the links owned by the account.
func (s *Service) Links(ctx context.Context, accountID int64) ([]domain.PaymentLink, error) {
	return s.store.PaymentLinks(ctx, accountID)
}
