package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"adspace/internal/app"
	"adspace/internal/availability"
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

	"github.com/google/uuid"
)

type Seeder struct {
	db      *database.DB
	engine  *app.Engine
	sandbox *processor.Sandbox
}

func main() {
	fmt.Println("🌱 Starting ad space marketplace seeder...")

	cfg := config.Load()
	appLogger := logger.GetDefault()

	db, err := database.InitDB(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Seeded payments go through the sandbox regardless of configuration
	sandbox, err := processor.NewSandbox(cfg.Processor, clock.System{})
	if err != nil {
		log.Fatalf("Failed to create sandbox processor: %v", err)
	}
	engine, err := app.New(db.PostgreSQL, cfg, app.Options{
		Logger:    appLogger,
		Processor: sandbox,
	})
	if err != nil {
		log.Fatalf("Failed to wire engine: %v", err)
	}

	seeder := &Seeder{db: db, engine: engine, sandbox: sandbox}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")
}

// CleanDatabase truncates every table, dependents first.
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"admin_actions",
		"timeline_events",
		"scheduled_jobs",
		"booking_disputes",
		"payouts",
		"booking_proofs",
		"webhook_receipts",
		"refunds",
		"payments",
		"checkout_lines",
		"checkout_sessions",
		"bookings",
		"campaigns",
		"space_blocked_dates",
		"spaces",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return tx.Commit().Error
}

func (s *Seeder) SeedAll(ctx context.Context) error {
	spaceList, err := s.SeedSpaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed spaces: %w", err)
	}
	campaignList, err := s.SeedCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed campaigns: %w", err)
	}
	if err := s.SeedBookings(ctx, spaceList, campaignList); err != nil {
		return fmt.Errorf("failed to seed bookings: %w", err)
	}
	return nil
}

func (s *Seeder) SeedSpaces(ctx context.Context) ([]*spaces.Space, error) {
	ownerA, ownerB := uuid.New(), uuid.New()
	list := []*spaces.Space{
		{
			OwnerID:            ownerA,
			Name:               "Sunset Blvd digital billboard",
			Location:           "Los Angeles, CA",
			PricePerDay:        25000,
			InstallationFee:    15000,
			MinDurationDays:    3,
			OwnerPayoutAccount: "acct_seed_sunset",
		},
		{
			OwnerID:            ownerA,
			Name:               "Union Station bus shelter",
			Location:           "Denver, CO",
			PricePerDay:        4500,
			MinDurationDays:    7,
			MaxDurationDays:    90,
			DepositPercent:     30,
			OwnerPayoutAccount: "acct_seed_union",
		},
		{
			OwnerID:         ownerB,
			Name:            "I-95 northbound bulletin",
			Location:        "Stamford, CT",
			PricePerDay:     18000,
			InstallationFee: 40000,
			MinDurationDays: 14,
			DepositPercent:  50,
			// payout account not connected yet
		},
	}

	for _, space := range list {
		space.Currency = "usd"
		space.Status = spaces.StatusActive
		if err := s.engine.Spaces.Create(ctx, space); err != nil {
			return nil, err
		}
		fmt.Printf("  Space: %s (%s) owner=%s\n", space.Name, space.ID, space.OwnerID)
	}

	// Owner maintenance window on the LA board
	start := time.Now().UTC().AddDate(0, 0, 45)
	if _, err := s.engine.Blocks.BlockDates(ctx, actor.Owner(list[0].OwnerID), list[0].ID, availability.BlockRequest{
		StartDate: start.Format(time.DateOnly),
		EndDate:   start.AddDate(0, 0, 2).Format(time.DateOnly),
		Reason:    "panel maintenance",
	}); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Seeder) SeedCampaigns(ctx context.Context) ([]*campaigns.Campaign, error) {
	deposit := 25
	list := []*campaigns.Campaign{
		{AdvertiserID: uuid.New(), Name: "Summer sneaker drop", Budget: 2_000_000},
		{AdvertiserID: uuid.New(), Name: "Regional bank rebrand", Budget: 5_000_000, DepositPercent: &deposit},
	}
	for _, c := range list {
		c.Status = campaigns.StatusActive
		if err := s.engine.Campaigns.Create(ctx, c); err != nil {
			return nil, err
		}
		fmt.Printf("  Campaign: %s (%s) advertiser=%s\n", c.Name, c.ID, c.AdvertiserID)
	}
	return list, nil
}

// SeedBookings leaves one booking in each early lifecycle stage.
func (s *Seeder) SeedBookings(ctx context.Context, spaceList []*spaces.Space, campaignList []*campaigns.Campaign) error {
	day := func(n int) string {
		return time.Now().UTC().AddDate(0, 0, n).Format(time.DateOnly)
	}

	pending, err := s.book(ctx, spaceList[0], campaignList[0], day(10), day(16))
	if err != nil {
		return err
	}
	fmt.Printf("  Booking %s: %s\n", pending.ID, pending.Status)

	approved, err := s.book(ctx, spaceList[1], campaignList[0], day(20), day(34))
	if err != nil {
		return err
	}
	if approved, err = s.engine.Bookings.Approve(ctx, actor.Owner(approved.OwnerID), approved.ID); err != nil {
		return err
	}
	fmt.Printf("  Booking %s: %s\n", approved.ID, approved.Status)

	paid, err := s.book(ctx, spaceList[2], campaignList[1], day(30), day(50))
	if err != nil {
		return err
	}
	if _, err = s.engine.Bookings.Approve(ctx, actor.Owner(paid.OwnerID), paid.ID); err != nil {
		return err
	}
	if paid, err = s.pay(ctx, paid); err != nil {
		return err
	}
	fmt.Printf("  Booking %s: %s\n", paid.ID, paid.Status)
	return nil
}

func (s *Seeder) book(ctx context.Context, space *spaces.Space, c *campaigns.Campaign, start, end string) (*bookings.Booking, error) {
	return s.engine.Bookings.Create(ctx, actor.Advertiser(c.AdvertiserID), bookings.CreateBookingRequest{
		SpaceID:    space.ID.String(),
		CampaignID: c.ID.String(),
		StartDate:  start,
		EndDate:    end,
		Notes:      "seeded",
	})
}

// pay completes checkout through the sandbox's signed webhook.
func (s *Seeder) pay(ctx context.Context, b *bookings.Booking) (*bookings.Booking, error) {
	res, err := s.engine.Payments.CreateCheckoutSession(ctx, actor.Advertiser(b.AdvertiserID), payments.CheckoutRequest{
		BookingIDs: []string{b.ID.String()},
	})
	if err != nil {
		return nil, err
	}
	var session payments.CheckoutSession
	if err := s.db.PostgreSQL.WithContext(ctx).First(&session, "id = ?", res.SessionID).Error; err != nil {
		return nil, err
	}
	payload, sig, err := s.sandbox.CompleteCheckout(session.ProcessorSessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Payments.HandleWebhook(ctx, payload, sig, "127.0.0.1"); err != nil {
		return nil, err
	}
	return s.engine.Bookings.Get(ctx, actor.System(), b.ID)
}
