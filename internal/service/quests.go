package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/tracing"
	"venue-ledger-api/internal/validation"
)

// ListAvailableQuests returns the venue's quests the user can see now,
// annotated with their completion count and whether another completion is allowed.
func (s *Service) ListAvailableQuests(ctx context.Context, venueID, userID string) ([]models.AvailableQuest, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()

	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	quests, err := s.db.ListAvailableQuests(ctx, venueID, user.Level, s.now())
	if err != nil {
		return nil, err
	}

	out := make([]models.AvailableQuest, 0, len(quests))
	for _, q := range quests {
		n, err := s.db.CountCompletions(ctx, q.ID, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.AvailableQuest{
			Quest:           q,
			UserCompletions: n,
			CanComplete:     q.MaxCompletions == nil || n < *q.MaxCompletions,
		})
	}
	return out, nil
}

// CompleteQuest records a completion and pays its rewards in one transaction.
func (s *Service) CompleteQuest(ctx context.Context, questID, userID string) (_ *models.QuestCompletionResult, err error) {
	ctx, span := tracing.Start(ctx, "service.CompleteQuest", tracing.QuestID(questID), tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	now := s.now()
	var (
		quest  *models.Quest
		result models.QuestCompletionResult
	)
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		q, err := tx.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		if !q.Active {
			return common.NotFound("quest")
		}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		if q.MaxCompletions != nil {
			n, err := tx.CountCompletions(ctx, q.ID, userID)
			if err != nil {
				return err
			}
			if n >= *q.MaxCompletions {
				return common.ErrQuestCapped
			}
		}
		if q.CooldownHours != nil {
			last, err := tx.LastCompletion(ctx, q.ID, userID)
			if err != nil {
				return err
			}
			if last != nil && now.Before(last.Add(time.Duration(*q.CooldownHours)*time.Hour)) {
				return common.ErrOnCooldown
			}
		}

		completion := &models.QuestCompletion{
			ID:          uuid.NewString(),
			QuestID:     q.ID,
			UserID:      userID,
			CompletedAt: now,
		}
		sess, err := tx.FindOpenSession(ctx, userID)
		switch {
		case err == nil:
			completion.VenueSessionID = &sess.ID
		case !errors.Is(err, common.ErrNotFound):
			return err
		}

		ok, err := tx.InsertCompletion(ctx, completion, q.MaxCompletions)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrQuestCapped
		}

		xp, level, err := awardXP(ctx, tx.Queries, userID, q.XPReward)
		if err != nil {
			return err
		}
		if q.NCReward > 0 {
			if _, err := credit(ctx, tx.Queries, userID, q.NCReward); err != nil {
				return err
			}
		}

		quest = q
		result = models.QuestCompletionResult{
			CompletionID: completion.ID,
			XPAwarded:    q.XPReward,
			NCAwarded:    q.NCReward,
			XP:           xp,
			Level:        level,
		}
		return nil
	})
	if err != nil {
		return nil, abort("quest completion", err)
	}

	venueID := quest.VenueID
	s.audit(ctx, &venueID, models.LogQuestComplete, map[string]any{
		"quest_id":   quest.ID,
		"user_id":    userID,
		"xp_awarded": result.XPAwarded,
		"nc_awarded": result.NCAwarded,
	})
	target := userID
	s.events.PublishNotification(ctx, models.Notification{
		ID:           uuid.NewString(),
		VenueID:      &venueID,
		TargetUserID: &target,
		Message:      fmt.Sprintf("Quest complete: %s! +%d XP +%d NC", quest.Title, result.XPAwarded, result.NCAwarded),
		CreatedAt:    s.now(),
	})
	log.WithFields(log.Fields{"quest_id": quest.ID, "user_id": userID, "level": result.Level}).Info("quest completed")
	return &result, nil
}

// CreateQuest adds a quest. Rewards and min level default to zero.
func (s *Service) CreateQuest(ctx context.Context, req models.QuestRequest) (*models.Quest, error) {
	if err := validation.ValidateUUID(req.VenueID, "venue_id"); err != nil {
		return nil, err
	}
	q := &models.Quest{
		ID:        uuid.NewString(),
		VenueID:   req.VenueID,
		Active:    true,
		CreatedAt: s.now(),
	}
	applyQuestPatch(q, req)
	if len(q.Conditions) == 0 {
		q.Conditions = json.RawMessage("{}")
	}
	if err := validation.ValidateQuest(q); err != nil {
		return nil, err
	}

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		if _, err := tx.GetVenue(ctx, q.VenueID); err != nil {
			return err
		}
		return tx.CreateQuest(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuest patches a quest. Setting active=false retires it.
func (s *Service) UpdateQuest(ctx context.Context, id string, req models.QuestRequest) (*models.Quest, error) {
	var q *models.Quest
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		var err error
		if q, err = tx.GetQuest(ctx, id); err != nil {
			return err
		}
		applyQuestPatch(q, req)
		if err := validation.ValidateQuest(q); err != nil {
			return err
		}
		return tx.UpdateQuest(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuest loads a quest.
func (s *Service) GetQuest(ctx context.Context, id string) (*models.Quest, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.GetQuest(ctx, id)
}

func applyQuestPatch(q *models.Quest, req models.QuestRequest) {
	if req.Title != nil {
		q.Title = *req.Title
	}
	if req.Description != nil {
		q.Description = *req.Description
	}
	if len(req.Conditions) > 0 {
		q.Conditions = req.Conditions
	}
	if req.XPReward != nil {
		q.XPReward = *req.XPReward
	}
	if req.NCReward != nil {
		q.NCReward = *req.NCReward
	}
	if req.MinLevel != nil {
		q.MinLevel = *req.MinLevel
	}
	if req.StartsAt != nil {
		q.StartsAt = req.StartsAt
	}
	if req.EndsAt != nil {
		q.EndsAt = req.EndsAt
	}
	if req.MaxCompletions != nil {
		q.MaxCompletions = req.MaxCompletions
	}
	if req.CooldownHours != nil {
		q.CooldownHours = req.CooldownHours
	}
	if req.Active != nil {
		q.Active = *req.Active
	}
}
