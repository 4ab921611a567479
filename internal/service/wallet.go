package service

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/tracing"
	"venue-ledger-api/internal/validation"
)

// credit adds a positive amount to the wallet and returns the new balance.
func credit(ctx context.Context, q *database.Queries, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return q.AdjustWallet(ctx, userID, amount)
}

// debit subtracts amount with no floor; callers apply the balance policy.
func debit(ctx context.Context, q *database.Queries, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, common.ErrInvalidAmount
	}
	return q.AdjustWallet(ctx, userID, -amount)
}

// walletTarget is a resolved top-up recipient.
type walletTarget struct {
	userID  string
	session *models.VenueSession
}

// resolveTarget picks the wallet owner: session id first, then the newest
// open session for the tag, then the newest session for the tag, then user id.
func resolveTarget(ctx context.Context, q *database.Queries, req models.TopUpRequest) (walletTarget, error) {
	switch {
	case !blank(req.SessionID):
		sess, err := q.GetSession(ctx, validation.SanitizeString(*req.SessionID))
		if err != nil {
			return walletTarget{}, err
		}
		if !blank(req.UserID) && validation.SanitizeString(*req.UserID) != sess.UserID {
			log.WithFields(log.Fields{
				"session_id": sess.ID,
				"user_id":    *req.UserID,
				"resolved":   sess.UserID,
			}).Warn("topup session belongs to a different user")
		}
		return walletTarget{userID: sess.UserID, session: sess}, nil

	case !blank(req.UIDTag):
		tag := validation.SanitizeString(*req.UIDTag)
		sess, err := q.FindSessionByTag(ctx, tag, true)
		if errors.Is(err, common.ErrNotFound) {
			sess, err = q.FindSessionByTag(ctx, tag, false)
		}
		if errors.Is(err, common.ErrNotFound) {
			return walletTarget{}, common.NotFound("session for uid_tag")
		}
		if err != nil {
			return walletTarget{}, err
		}
		return walletTarget{userID: sess.UserID, session: sess}, nil

	case !blank(req.UserID):
		return walletTarget{userID: validation.SanitizeString(*req.UserID)}, nil
	}
	return walletTarget{}, common.Invalid("one of session_id, uid_tag or user_id is required")
}

func blank(s *string) bool {
	return s == nil || validation.SanitizeString(*s) == ""
}

// ResolveTarget returns the user a top-up would credit.
func (s *Service) ResolveTarget(ctx context.Context, req models.TopUpRequest) (string, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	target, err := resolveTarget(ctx, s.db.Queries, req)
	return target.userID, err
}

// TopUp credits a guest wallet on behalf of staff.
func (s *Service) TopUp(ctx context.Context, staff models.Principal, req models.TopUpRequest) (_ *models.TopUpResult, err error) {
	ctx, span := tracing.Start(ctx, "service.TopUp", tracing.VenueID(staff.VenueID))
	defer func() { tracing.End(span, err) }()

	amount, err := validation.ValidateTopUp(req)
	if err != nil {
		return nil, err
	}

	var result models.TopUpResult
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		target, err := resolveTarget(ctx, tx.Queries, req)
		if err != nil {
			return err
		}
		balance, err := credit(ctx, tx.Queries, target.userID, amount)
		if err != nil {
			return err
		}
		result = models.TopUpResult{UserID: target.userID, Amount: amount, WalletBalance: balance}
		if target.session != nil {
			result.SessionID = target.session.ID
		}
		return nil
	})
	if err != nil {
		return nil, abort("topup", err)
	}
	span.SetAttributes(attribute.Int64("wallet.amount", amount))

	var venueID *string
	if staff.VenueID != "" {
		v := staff.VenueID
		venueID = &v
	}
	s.audit(ctx, venueID, models.LogTopUp, map[string]any{
		"user_id":     result.UserID,
		"amount":      amount,
		"staff_id":    staff.UserID,
		"new_balance": result.WalletBalance,
	})
	return &result, nil
}
