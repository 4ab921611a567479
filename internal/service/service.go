package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/cache"
	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/events"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/progression"
	"venue-ledger-api/internal/rules"
	"venue-ledger-api/internal/validation"
)

// SettlementPolicy decides what happens when stock or a wallet would go negative.
type SettlementPolicy string

const (
	// PolicyAllow commits and records a NEGATIVE_STOCK or OVERDRAFT flag.
	PolicyAllow SettlementPolicy = "allow"
	// PolicyReject aborts the checkout with ErrInsufficientStock or ErrInsufficientFunds.
	PolicyReject SettlementPolicy = "reject"
)

// Policy holds the tunable ledger rules.
type Policy struct {
	Stock              SettlementPolicy
	Balance            SettlementPolicy
	UndoWindow         time.Duration
	RefundWalletOnUndo bool
	CheckInXP          int64
	CheckInNC          int64
}

// DefaultPolicy allows negative stock and balances and gives undo a minute.
func DefaultPolicy() Policy {
	return Policy{
		Stock:      PolicyAllow,
		Balance:    PolicyAllow,
		UndoWindow: 60 * time.Second,
		CheckInXP:  50,
		CheckInNC:  10,
	}
}

// Service provides the ledger operations: orders, inventory, wallets,
// progression, quests, sessions and automation rules.
type Service struct {
	db       *database.DB
	replay   *cache.OrderReplay
	events   *events.Manager
	features *features.Manager
	rules    *rules.Evaluator
	policy   Policy
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithReplayCache sets the checkout replay cache.
func WithReplayCache(r *cache.OrderReplay) Option {
	return func(s *Service) { s.replay = r }
}

// WithEvents sets the manager used for post-commit side effects.
func WithEvents(m *events.Manager) Option {
	return func(s *Service) { s.events = m }
}

// WithFeatures sets the feature flags.
func WithFeatures(f *features.Manager) Option {
	return func(s *Service) { s.features = f }
}

// NewService creates a new service instance and subscribes its side-effect
// handlers to the event manager.
func NewService(db *database.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.replay == nil {
		s.replay = cache.NewOrderReplay(cache.NewMemoryCache(), cache.DefaultReplayTTL)
	}
	if s.events == nil {
		s.events = events.NewManager(true)
	}
	if s.features == nil {
		s.features = features.Defaults()
	}

	s.rules = rules.NewEvaluator(db)
	s.rules.Subscribe(s.events)
	s.events.Subscribe(events.EventNotification, s.storeNotification)
	return s
}

// Features returns the flags the service consults.
func (s *Service) Features() *features.Manager {
	return s.features
}

// Wait blocks until queued side effects have run.
func (s *Service) Wait() {
	s.events.Wait()
}

// Close drains side effects. The database is closed by its owner.
func (s *Service) Close() {
	s.events.Shutdown()
}

// Health pings the store.
func (s *Service) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// abort surfaces unexpected failures inside a ledger transaction as
// ErrUnavailable so callers may retry.
func abort(op string, err error) error {
	if common.IsClassified(err) {
		return err
	}
	return fmt.Errorf("%w: %s aborted: %w", common.ErrUnavailable, op, err)
}

// audit writes a log entry after commit. Failures are logged only.
func (s *Service) audit(ctx context.Context, venueID *string, logType models.LogType, payload any) {
	ctx, cancel := s.db.Bound(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.db.InsertLog(ctx, venueID, logType, payload, s.now()); err != nil {
		log.WithError(err).WithField("type", string(logType)).Warn("audit log dropped")
	}
}

// triggerRules queues rule evaluation when rules are enabled.
func (s *Service) triggerRules(ctx context.Context, venueID string, trigger models.TriggerType, tc models.TriggerContext) {
	if !s.features.IsEnabled(features.FeatureRulesEnabled) {
		return
	}
	s.events.PublishRuleTrigger(ctx, venueID, trigger, tc)
}

func (s *Service) storeNotification(ctx context.Context, ev events.Event) error {
	data, ok := ev.Data.(events.NotificationData)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", ev.Data)
	}
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.CreateNotification(ctx, &data.Notification)
}

// awardXP adds amount to the user's xp and stores the derived level.
func awardXP(ctx context.Context, q *database.Queries, userID string, amount int64) (int64, int, error) {
	xp, err := q.AddXP(ctx, userID, amount)
	if err != nil {
		return 0, 0, err
	}
	level := progression.LevelFromXp(xp)
	if err := q.SetLevel(ctx, userID, level); err != nil {
		return 0, 0, err
	}
	return xp, level, nil
}

// AwardXP atomically adds amount to a user's xp and returns the new xp and level.
func (s *Service) AwardXP(ctx context.Context, userID string, amount int64) (int64, int, error) {
	if amount < 0 {
		return 0, 0, common.Invalid("xp amount must be non-negative")
	}
	var (
		xp    int64
		level int
	)
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		var err error
		xp, level, err = awardXP(ctx, tx.Queries, userID, amount)
		return err
	})
	if err != nil {
		return 0, 0, abort("award xp", err)
	}
	return xp, level, nil
}

// CreateUser registers a user. Admins use it for staff accounts.
func (s *Service) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if !req.Role.Valid() {
		return nil, common.Invalid("unknown role %q", req.Role)
	}
	if req.VenueID != nil {
		if err := validation.ValidateUUID(*req.VenueID, "venue_id"); err != nil {
			return nil, err
		}
	}
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()

	if req.VenueID != nil {
		if _, err := s.db.GetVenue(ctx, *req.VenueID); err != nil {
			return nil, err
		}
	}
	u := &models.User{
		ID:        uuid.NewString(),
		Role:      req.Role,
		VenueID:   req.VenueID,
		Level:     1,
		CreatedAt: s.now(),
	}
	if err := s.db.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser loads a user.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.GetUser(ctx, id)
}

// CreateVenue registers a venue. City defaults to Zurich.
func (s *Service) CreateVenue(ctx context.Context, req models.CreateVenueRequest) (*models.Venue, error) {
	name := validation.SanitizeString(req.Name)
	if name == "" {
		return nil, common.Invalid("name is required")
	}
	if req.Capacity != nil && *req.Capacity <= 0 {
		req.Capacity = nil
	}
	city := validation.SanitizeString(req.City)
	if city == "" {
		city = "Zurich"
	}
	v := &models.Venue{ID: uuid.NewString(), Name: name, City: city, Capacity: req.Capacity, CreatedAt: s.now()}

	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	if err := s.db.CreateVenue(ctx, v, validation.SanitizeString(req.Pin)); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVenues returns every venue.
func (s *Service) ListVenues(ctx context.Context) ([]models.Venue, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.ListVenues(ctx)
}
