package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/progression"
	"venue-ledger-api/internal/tracing"
	"venue-ledger-api/internal/validation"
)

const (
	profileVisitLimit      = 20
	profileCompletionLimit = 20
	historyPageSize        = 20
)

// CheckIn opens a venue session. A known uid tag reuses its user; otherwise
// a guest user is created. Any open session of that user at the venue is closed.
func (s *Service) CheckIn(ctx context.Context, req models.CheckInRequest) (_ *models.CheckInResult, err error) {
	ctx, span := tracing.Start(ctx, "service.CheckIn", tracing.VenueID(req.VenueID))
	defer func() { tracing.End(span, err) }()

	if err := validation.ValidateUUID(req.VenueID, "venue_id"); err != nil {
		return nil, err
	}
	var tag *string
	if !blank(req.UIDTag) {
		t := validation.SanitizeString(*req.UIDTag)
		tag = &t
	}

	now := s.now()
	rewards := s.features.IsEnabled(features.FeatureCheckinRewards)
	var result models.CheckInResult
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		result = models.CheckInResult{}
		if _, err := tx.GetVenue(ctx, req.VenueID); err != nil {
			return err
		}

		var userID string
		if tag != nil {
			sess, err := tx.FindSessionByTag(ctx, *tag, true)
			if errors.Is(err, common.ErrNotFound) {
				sess, err = tx.FindSessionByTag(ctx, *tag, false)
			}
			switch {
			case err == nil:
				userID = sess.UserID
			case !errors.Is(err, common.ErrNotFound):
				return err
			}
		}
		if userID == "" {
			venueID := req.VenueID
			guest := &models.User{ID: uuid.NewString(), Role: models.RoleGuest, VenueID: &venueID, Level: 1, CreatedAt: now}
			if err := tx.CreateUser(ctx, guest); err != nil {
				return err
			}
			userID = guest.ID
		}

		if _, err := tx.CloseOpenSessions(ctx, userID, &req.VenueID, now); err != nil {
			return err
		}
		sess := &models.VenueSession{ID: uuid.NewString(), VenueID: req.VenueID, UserID: userID, UIDTag: tag, StartedAt: now}
		if err := tx.OpenSession(ctx, sess); err != nil {
			return err
		}
		result.Session = *sess

		if rewards {
			if s.policy.CheckInXP > 0 {
				if _, _, err := awardXP(ctx, tx.Queries, userID, s.policy.CheckInXP); err != nil {
					return err
				}
				result.XPAwarded = s.policy.CheckInXP
			}
			if s.policy.CheckInNC > 0 {
				if _, err := credit(ctx, tx.Queries, userID, s.policy.CheckInNC); err != nil {
					return err
				}
				result.NCAwarded = s.policy.CheckInNC
			}
		}

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		result.User = *user
		result.Occupancy, err = tx.CountOpenSessions(ctx, req.VenueID)
		return err
	})
	if err != nil {
		return nil, abort("check-in", err)
	}

	venueID := req.VenueID
	s.audit(ctx, &venueID, models.LogCheckIn, map[string]any{
		"user_id":    result.User.ID,
		"uid_tag":    tag,
		"session_id": result.Session.ID,
	})
	occupancy := result.Occupancy
	s.triggerRules(ctx, venueID, models.TriggerEvent, models.TriggerContext{
		Occupancy: &occupancy,
		Extra:     map[string]any{"type": "checkin", "user_id": result.User.ID},
	})
	log.WithFields(log.Fields{"venue_id": venueID, "user_id": result.User.ID, "occupancy": occupancy}).Info("guest checked in")
	return &result, nil
}

// CheckOut closes every open session of the user.
func (s *Service) CheckOut(ctx context.Context, userID string) ([]models.VenueSession, error) {
	ctx2, cancel := s.db.Bound(ctx)
	defer cancel()

	closed, err := s.db.CloseOpenSessions(ctx2, userID, nil, s.now())
	if err != nil {
		return nil, err
	}
	if len(closed) == 0 {
		return nil, common.Invalid("no active session")
	}
	for _, sess := range closed {
		venueID := sess.VenueID
		s.audit(ctx, &venueID, models.LogCheckOut, map[string]any{
			"user_id":     userID,
			"session_id":  sess.ID,
			"total_spend": sess.TotalSpend,
		})
	}
	return closed, nil
}

// Profile returns the user, their open session, level progress and recent visits.
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()

	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := &models.Profile{User: *user}

	sess, err := s.db.FindOpenSession(ctx, userID)
	switch {
	case err == nil:
		p.Session = sess
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	p.Progress.Current, p.Progress.Needed = progression.Progress(user.XP)
	if p.Visits, err = s.db.ListUserSessions(ctx, userID, profileVisitLimit, 0); err != nil {
		return nil, err
	}
	if p.Visits == nil {
		p.Visits = []models.VenueSession{}
	}
	if p.QuestCompletions, err = s.db.ListUserCompletions(ctx, userID, profileCompletionLimit); err != nil {
		return nil, err
	}
	return p, nil
}

// VisitHistory returns one page of the user's visits, newest first. Pages
// start at 1.
func (s *Service) VisitHistory(ctx context.Context, userID string, page int) ([]models.VenueSession, error) {
	if page < 1 {
		return nil, common.Invalid("page must be at least 1")
	}
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	visits, err := s.db.ListUserSessions(ctx, userID, historyPageSize, (page-1)*historyPageSize)
	if err != nil {
		return nil, err
	}
	if visits == nil {
		visits = []models.VenueSession{}
	}
	return visits, nil
}

// Headcount counts open sessions at a venue.
func (s *Service) Headcount(ctx context.Context, venueID string) (*models.Headcount, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()

	v, err := s.db.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	n, err := s.db.CountOpenSessions(ctx, venueID)
	if err != nil {
		return nil, err
	}
	return &models.Headcount{VenueID: v.ID, Occupancy: n, Capacity: v.Capacity}, nil
}
