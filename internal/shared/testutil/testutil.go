// Package testutil builds throwaway engines on in-memory SQLite for the
// package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"adspace/internal/app"
	"adspace/internal/bookings"
	"adspace/internal/campaigns"
	"adspace/internal/payments"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/internal/shared/database"
	"adspace/internal/spaces"
	"adspace/pkg/logger"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Epoch is the fake clock's starting instant in every test engine.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// OpenSQLite returns a migrated in-memory database private to the test.
func OpenSQLite(t *testing.T, clk clock.Clock) *gorm.DB {
	t.Helper()
	if clk == nil {
		clk = clock.System{}
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return clk.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes transactions the way row locks do on Postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Config is the production defaults with test secrets.
func Config() *config.Config {
	return &config.Config{
		GinMode:    "test",
		APIVersion: "v1",
		APIPrefix:  "/api",
		JWT:        config.JWTConfig{Secret: "test-secret"},
		Processor: config.ProcessorConfig{
			WebhookSecret:    "whsec_test",
			CheckoutBaseURL:  "https://pay.test/checkout",
			SuccessURL:       "https://app.test/success",
			CancelURL:        "https://app.test/cancel",
			Currency:         "usd",
			FeeBasisPoints:   290,
			FeeFixedCents:    30,
			WebhookTolerance: 5 * time.Minute,
		},
		Marketplace: config.MarketplaceConfig{
			PlatformFeeBasisPoints: 1000,
			ProofReviewWindow:      48 * time.Hour,
			PayoutStage1Percent:    100,
			CompletionDelay:        24 * time.Hour,
			BalanceLeadTime:        7 * 24 * time.Hour,
			StaleTransferAfter:     10 * time.Minute,
			RefundRetryAfter:       5 * time.Minute,
		},
		Jobs: config.JobsConfig{
			PollInterval:  time.Second,
			BatchSize:     50,
			MaxAttempts:   5,
			RetryBackoff:  time.Minute,
			LeaseDuration: 5 * time.Minute,
		},
		Outbox: config.OutboxConfig{
			DispatchInterval: time.Second,
			BatchSize:        100,
		},
	}
}

// Env is a wired engine with handles on the fakes behind it.
type Env struct {
	*app.Engine
	Clock   *clock.Fake
	Sandbox *processor.Sandbox
}

// NewEngine builds an engine on a fresh database. mutate may adjust the
// config before wiring.
func NewEngine(t *testing.T, mutate ...func(*config.Config)) *Env {
	t.Helper()
	cfg := Config()
	for _, m := range mutate {
		m(cfg)
	}

	clk := clock.NewFake(Epoch)
	sandbox, err := processor.NewSandbox(cfg.Processor, clk)
	require.NoError(t, err)

	engine, err := app.New(OpenSQLite(t, clk), cfg, app.Options{
		Clock:     clk,
		Logger:    logger.NewDiscard(),
		Processor: sandbox,
	})
	require.NoError(t, err)
	return &Env{Engine: engine, Clock: clk, Sandbox: sandbox}
}

// Day returns the date n days after Epoch as YYYY-MM-DD.
func Day(n int) string {
	return Epoch.AddDate(0, 0, n).Format(time.DateOnly)
}

// Space creates an active space priced at $100 a day with a payout account.
func (e *Env) Space(t *testing.T, opts ...func(*spaces.Space)) *spaces.Space {
	t.Helper()
	space := &spaces.Space{
		OwnerID:            uuid.New(),
		Name:               "Highway 101 billboard",
		Location:           "San Mateo, CA",
		PricePerDay:        10000,
		Currency:           "usd",
		MinDurationDays:    1,
		OwnerPayoutAccount: "acct_" + uuid.NewString()[:8],
		Status:             spaces.StatusActive,
	}
	for _, o := range opts {
		o(space)
	}
	require.NoError(t, e.Spaces.Create(context.Background(), space))
	return space
}

// Campaign creates an active campaign for a new advertiser.
func (e *Env) Campaign(t *testing.T) *campaigns.Campaign {
	t.Helper()
	c := &campaigns.Campaign{
		AdvertiserID: uuid.New(),
		Name:         "Spring launch",
		Status:       campaigns.StatusActive,
	}
	require.NoError(t, e.Campaigns.Create(context.Background(), c))
	return c
}

// Book requests the space for days [from, to] after Epoch.
func (e *Env) Book(t *testing.T, space *spaces.Space, c *campaigns.Campaign, from, to int) *bookings.Booking {
	t.Helper()
	b, err := e.Bookings.Create(context.Background(), actor.Advertiser(c.AdvertiserID), bookings.CreateBookingRequest{
		SpaceID:    space.ID.String(),
		CampaignID: c.ID.String(),
		StartDate:  Day(from),
		EndDate:    Day(to),
	})
	require.NoError(t, err)
	return b
}

// Approve approves b as its owner.
func (e *Env) Approve(t *testing.T, b *bookings.Booking) *bookings.Booking {
	t.Helper()
	approved, err := e.Bookings.Approve(context.Background(), actor.Owner(b.OwnerID), b.ID)
	require.NoError(t, err)
	return approved
}

// Pay opens checkout for b and delivers the processor's completion webhook.
func (e *Env) Pay(t *testing.T, b *bookings.Booking) *bookings.Booking {
	t.Helper()
	ctx := context.Background()
	res, err := e.Payments.CreateCheckoutSession(ctx, actor.Advertiser(b.AdvertiserID), payments.CheckoutRequest{
		BookingIDs: []string{b.ID.String()},
	})
	require.NoError(t, err)

	payload, sig := e.CompletionWebhook(t, res.SessionID)
	_, err = e.Payments.HandleWebhook(ctx, payload, sig, "127.0.0.1")
	require.NoError(t, err)
	return e.Reload(t, b.ID)
}

// CompletionWebhook builds the signed checkout-completed event for one of
// our checkout sessions.
func (e *Env) CompletionWebhook(t *testing.T, sessionID uuid.UUID) ([]byte, string) {
	t.Helper()
	var session payments.CheckoutSession
	require.NoError(t, e.DB.First(&session, "id = ?", sessionID).Error)
	payload, sig, err := e.Sandbox.CompleteCheckout(session.ProcessorSessionID)
	require.NoError(t, err)
	return payload, sig
}

// Confirmed books days [from, to] and walks the booking to CONFIRMED.
func (e *Env) Confirmed(t *testing.T, space *spaces.Space, from, to int) *bookings.Booking {
	t.Helper()
	b := e.Book(t, space, e.Campaign(t), from, to)
	e.Approve(t, b)
	return e.Pay(t, b)
}

// Reload reads the booking back from the database.
func (e *Env) Reload(t *testing.T, id uuid.UUID) *bookings.Booking {
	t.Helper()
	var b bookings.Booking
	require.NoError(t, e.DB.First(&b, "id = ?", id).Error)
	return &b
}

// RunJobs advances the clock by d and runs every job that became due.
func (e *Env) RunJobs(t *testing.T, d time.Duration) int {
	t.Helper()
	e.Clock.Advance(d)
	n, err := e.Runner.RunDue(context.Background())
	require.NoError(t, err)
	return n
}

// Token signs an access token the JWT middleware accepts.
func Token(t *testing.T, cfg *config.Config, role string, id uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": id.String(),
		"role":    role,
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)
	return signed
}
