package app

import (
	"context"
	"fmt"

	"adspace/internal/admin"
	"adspace/internal/audit"
	"adspace/internal/availability"
	"adspace/internal/bookings"
	"adspace/internal/campaigns"
	"adspace/internal/disputes"
	"adspace/internal/jobs"
	"adspace/internal/payments"
	"adspace/internal/payouts"
	"adspace/internal/pricing"
	"adspace/internal/processor"
	"adspace/internal/proofs"
	"adspace/internal/realtime"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/internal/shared/middleware"
	"adspace/internal/spaces"
	"adspace/pkg/cache"
	"adspace/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Options carries the collaborators that differ between the server, the
// seed command and tests.
type Options struct {
	Clock     clock.Clock
	Logger    *logger.Logger
	Cache     cache.Service
	Processor processor.Processor
	Hub       *realtime.Hub

	// StreamSink replaces the in-process hub as the dispatcher's event
	// sink, e.g. the Kafka producer when several instances share a topic.
	StreamSink audit.Sink
}

// Engine is the fully wired marketplace: repositories, services, the job
// runner and the timeline dispatcher.
type Engine struct {
	DB        *gorm.DB
	Config    *config.Config
	Clock     clock.Clock
	Logger    *logger.Logger
	Cache     cache.Service
	Processor processor.Processor
	Hub       *realtime.Hub

	Spaces    spaces.Repository
	Campaigns campaigns.Repository
	Events    audit.Repository
	Recorder  *audit.Recorder
	Jobs      *jobs.Store

	Checker  *availability.Checker
	Calendar *availability.CalendarService
	Blocks   *availability.BlockService
	Machine  *bookings.StateMachine
	Bookings bookings.Service
	Payments *payments.Service
	Payouts  *payouts.Scheduler
	Proofs   *proofs.Service
	Disputes *disputes.Service
	Admin    *admin.Service

	Runner     *jobs.Runner
	Dispatcher *audit.Dispatcher
}

func New(db *gorm.DB, cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNoop()
	}
	if opts.Processor == nil {
		sandbox, err := processor.NewSandbox(cfg.Processor, opts.Clock)
		if err != nil {
			return nil, fmt.Errorf("failed to create sandbox processor: %w", err)
		}
		opts.Processor = sandbox
	}
	if opts.Hub == nil {
		opts.Hub = realtime.NewHub(opts.Logger)
	}

	e := &Engine{
		DB:        db,
		Config:    cfg,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		Cache:     opts.Cache,
		Processor: opts.Processor,
		Hub:       opts.Hub,
	}

	e.Spaces = spaces.NewRepository(db)
	e.Campaigns = campaigns.NewRepository(db)
	e.Events = audit.NewRepository(db)
	e.Recorder = audit.NewRecorder(e.Clock)
	e.Jobs = jobs.NewStore(db, e.Clock)

	bookingRepo := bookings.NewRepository(db)
	e.Checker = availability.NewChecker(db, e.Spaces, bookingRepo, e.Clock)
	e.Calendar = availability.NewCalendarService(e.Checker, e.Cache)
	e.Blocks = availability.NewBlockService(e.Checker, e.Cache, e.Logger)
	e.Machine = bookings.NewStateMachine(e.Recorder, e.Jobs, e.Spaces, e.Clock, e.Logger)

	e.Bookings = bookings.NewService(bookings.Dependencies{
		DB:         db,
		Repo:       bookingRepo,
		Campaigns:  e.Campaigns,
		Spaces:     e.Spaces,
		Checker:    e.Checker,
		Calculator: pricing.NewCalculator(cfg.Marketplace.PlatformFeeBasisPoints, e.Processor),
		Machine:    e.Machine,
		Recorder:   e.Recorder,
		Logger:     e.Logger,
	})

	e.Payments = payments.NewService(payments.Dependencies{
		DB:          db,
		Processor:   e.Processor,
		Machine:     e.Machine,
		Recorder:    e.Recorder,
		Jobs:        e.Jobs,
		Clock:       e.Clock,
		Logger:      e.Logger,
		Config:      cfg.Processor,
		Marketplace: cfg.Marketplace,
	})

	e.Payouts = payouts.NewScheduler(payouts.Dependencies{
		DB:        db,
		Processor: e.Processor,
		Machine:   e.Machine,
		Recorder:  e.Recorder,
		Jobs:      e.Jobs,
		Spaces:    e.Spaces,
		Clock:     e.Clock,
		Logger:    e.Logger,
		Config:    cfg.Marketplace,
	})

	e.Proofs = proofs.NewService(proofs.Dependencies{
		DB:       db,
		Machine:  e.Machine,
		Recorder: e.Recorder,
		Jobs:     e.Jobs,
		Payouts:  e.Payouts,
		Clock:    e.Clock,
		Logger:   e.Logger,
		Config:   cfg.Marketplace,
	})

	e.Disputes = disputes.NewService(disputes.Dependencies{
		DB:       db,
		Machine:  e.Machine,
		Recorder: e.Recorder,
		Proofs:   e.Proofs,
		Payments: e.Payments,
		Payouts:  e.Payouts,
		Clock:    e.Clock,
		Logger:   e.Logger,
	})

	e.Admin = admin.NewService(admin.Dependencies{
		Repo:     admin.NewRepository(db),
		Events:   e.Events,
		Bookings: e.Bookings,
		Proofs:   e.Proofs,
		Disputes: e.Disputes,
		Payments: e.Payments,
		Payouts:  e.Payouts,
		Cache:    e.Cache,
		Clock:    e.Clock,
		Logger:   e.Logger,
		Config:   cfg.Marketplace,
	})

	e.Runner = jobs.NewRunner(e.Jobs, cfg.Jobs, e.Clock, e.Logger)
	e.Runner.Register(jobs.KindProofAutoApprove, e.Proofs.AutoApproveHandler)
	e.Runner.Register(jobs.KindBookingCompletion, e.Payouts.CompletionHandler)
	e.Runner.Register(jobs.KindBalanceCharge, e.Payments.BalanceHandler)
	e.Runner.Register(jobs.KindPayoutTransfer, e.Payouts.TransferHandler)
	e.Runner.Register(jobs.KindRefundReconcile, e.Payments.RefundReconcileHandler)

	var stream audit.Sink = e.Hub
	if opts.StreamSink != nil {
		stream = opts.StreamSink
	}
	e.Dispatcher = audit.NewDispatcher(e.Events, e.Clock, e.Logger,
		cfg.Outbox.DispatchInterval, cfg.Outbox.BatchSize,
		stream, availability.NewCalendarInvalidator(e.Cache, e.Logger))

	return e, nil
}

// Start launches the job runner and the timeline dispatcher.
func (e *Engine) Start(ctx context.Context) {
	e.Runner.Start(ctx)
	e.Dispatcher.Start(ctx)
}

func (e *Engine) Stop() {
	e.Runner.Stop()
	e.Dispatcher.Stop()
}

// RegisterRoutes mounts every API group on rg.
func (e *Engine) RegisterRoutes(rg *gin.RouterGroup) {
	auth := middleware.JWTAuth(e.Config)

	availability.SetupAvailabilityRoutes(rg, availability.NewController(e.Checker, e.Calendar, e.Blocks), auth)
	bookings.SetupBookingRoutes(rg, bookings.NewController(e.Bookings), auth)
	realtime.SetupStreamRoutes(rg, realtime.NewController(e.Hub, e.Bookings, e.Logger), middleware.JWTAuthAllowQuery(e.Config))
	payments.SetupPaymentRoutes(rg, payments.NewController(e.Payments), auth)
	proofs.SetupProofRoutes(rg, proofs.NewController(e.Proofs), auth)
	disputes.SetupDisputeRoutes(rg, disputes.NewController(e.Disputes), auth)
	admin.SetupAdminRoutes(rg, admin.NewController(e.Admin), auth)
}
