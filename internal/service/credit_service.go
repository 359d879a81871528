package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/store"
)

// CreditService is the single gate in front of a user's spendable
// allowance. Authorize deducts up front; the caller settles with Commit or
// Refund. Reservation state lives in the store so settling is exactly-once
// even across processes.
type CreditService struct {
	credits     store.CreditStore
	signupGrant int
}

func NewCreditService(credits store.CreditStore, signupGrant int) *CreditService {
	return &CreditService{
		credits:     credits,
		signupGrant: signupGrant,
	}
}

// Authorize reserves cost credits for userID. Unlimited subscribers get a
// bypass reservation without touching the balance. Returns
// model.ErrInsufficientCredits with no side effects when the balance does
// not cover the cost.
func (s *CreditService) Authorize(ctx context.Context, userID string, cost int) (*model.Reservation, error) {
	balance, err := s.ensureBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &model.Reservation{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     model.ReservationPending,
		CreatedAt: time.Now(),
	}

	if !balance.Metered() {
		res.Bypass = true
		if err := s.credits.CreateReservation(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to create reservation: %w", err)
		}
		return res, nil
	}

	if _, err := s.credits.DebitCredits(ctx, userID, cost); err != nil {
		return nil, err
	}
	res.Amount = cost

	if err := s.credits.CreateReservation(ctx, res); err != nil {
		// Give the deducted amount back; the reservation never existed.
		_, _ = s.credits.AddCredits(ctx, userID, cost)
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return res, nil
}

// Commit finalizes a reservation. Committing twice, or committing an
// already refunded reservation, is a no-op.
func (s *CreditService) Commit(ctx context.Context, res *model.Reservation) error {
	if res == nil {
		return nil
	}
	_, err := s.credits.TransitionReservation(ctx, res.ID, model.ReservationPending, model.ReservationCommitted)
	return err
}

// Refund restores the reserved amount exactly once. Refunding a committed
// or already refunded reservation is a silent no-op, never a double credit.
func (s *CreditService) Refund(ctx context.Context, res *model.Reservation) error {
	if res == nil {
		return nil
	}
	swapped, err := s.credits.TransitionReservation(ctx, res.ID, model.ReservationPending, model.ReservationRefunded)
	if err != nil {
		return err
	}
	if !swapped || res.Bypass || res.Amount == 0 {
		return nil
	}
	_, err = s.credits.AddCredits(ctx, res.UserID, res.Amount)
	return err
}

// CreditUser is the payment-webhook push: add amount to the balance,
// independent of any reservation.
func (s *CreditService) CreditUser(ctx context.Context, userID string, amount int) (int, error) {
	if _, err := s.ensureBalance(ctx, userID); err != nil {
		return 0, err
	}
	return s.credits.AddCredits(ctx, userID, amount)
}

// GetBalance returns the balance, provisioning it on first touch.
func (s *CreditService) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	return s.ensureBalance(ctx, userID)
}

func (s *CreditService) ensureBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	balance, err := s.credits.GetBalance(ctx, userID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, store.ErrBalanceNotFound) {
		return nil, err
	}

	balance = &model.CreditBalance{
		UserID:    userID,
		Credits:   s.signupGrant,
		Tier:      model.TierFree,
		Status:    model.SubscriptionActive,
		UpdatedAt: time.Now(),
	}
	if err := s.credits.PutBalance(ctx, balance); err != nil {
		return nil, err
	}
	return balance, nil
}
