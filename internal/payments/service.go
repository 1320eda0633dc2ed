package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/pricing"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/internal/shared/errs"
	"adspace/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Dependencies struct {
	DB          *gorm.DB
	Processor   processor.Processor
	Machine     *bookings.StateMachine
	Recorder    *audit.Recorder
	Jobs        *jobs.Store
	Clock       clock.Clock
	Logger      *logger.Logger
	Config      config.ProcessorConfig
	Marketplace config.MarketplaceConfig
}

// Service moves money in: hosted checkout, processor webhooks, balance
// charges and refunds.
type Service struct {
	Dependencies
	validate *validator.Validate
}

func NewService(deps Dependencies) *Service {
	return &Service{Dependencies: deps, validate: validator.New()}
}

type CheckoutResult struct {
	SessionID   uuid.UUID   `json:"session_id"`
	RedirectURL string      `json:"redirect_url"`
	AmountDue   int64       `json:"amount_due"`
	Currency    string      `json:"currency"`
	ExpiresAt   time.Time   `json:"expires_at"`
	BookingIDs  []uuid.UUID `json:"booking_ids"`
	Reused      bool        `json:"reused"`
}

// CreateCheckoutSession opens one hosted checkout for the first payment of
// every booking in req. Asking again for the same set of bookings returns the
// session that is still open.
func (s *Service) CreateCheckoutSession(ctx context.Context, act actor.Actor, req CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if act.Type != actor.TypeAdvertiser {
		return nil, errs.Forbidden("only advertisers can pay for bookings")
	}
	ids, err := normalizeIDs(req.BookingIDs)
	if err != nil {
		return nil, err
	}
	setKey := bookingSetKey(ids)

	var (
		existing *CheckoutSession
		lines    []CheckoutLine
		key      string
		currency string
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockPayable(ctx, tx, act, ids)
		if err != nil {
			return err
		}
		if existing, err = s.openSessionForSet(ctx, tx, setKey); err != nil || existing != nil {
			return err
		}
		if err := s.ensureNotInOtherSession(ctx, tx, ids); err != nil {
			return err
		}

		var generation int64
		if err := tx.Model(&CheckoutSession{}).Where("booking_set_key = ?", setKey).Count(&generation).Error; err != nil {
			return err
		}
		key = fmt.Sprintf("checkout:%s:%d", setKey, generation+1)

		lines, currency = linesFor(locked)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return toCheckoutResult(existing, true), nil
	}

	procLines := make([]processor.CheckoutLine, 0, len(lines))
	for _, l := range lines {
		procLines = append(procLines, processor.CheckoutLine{
			Reference:   l.BookingID.String(),
			Description: fmt.Sprintf("%s payment for booking %s", strings.ToLower(string(l.PaymentType)), l.BookingID),
			Amount:      l.Amount,
		})
	}
	procSession, err := s.Processor.CreateCheckoutSession(ctx, processor.CheckoutRequest{
		IdempotencyKey: key,
		CustomerRef:    act.ID.String(),
		Currency:       currency,
		Lines:          procLines,
		SuccessURL:     s.Config.SuccessURL,
		CancelURL:      s.Config.CancelURL,
		Metadata:       map[string]string{"booking_set": setKey.String()},
	})
	if err != nil {
		s.Logger.LogPaymentFailure(ctx, ids[0].String(), "checkout", err.Error())
		return nil, errs.Wrap(errs.KindPaymentFailure, err, "could not open checkout")
	}

	session := &CheckoutSession{
		ProcessorSessionID: procSession.ID,
		AdvertiserID:       act.ID,
		IdempotencyKey:     key,
		BookingSetKey:      setKey,
		Status:             SessionOpen,
		RedirectURL:        procSession.URL,
		AmountDue:          procSession.AmountTotal,
		Currency:           currency,
		ExpiresAt:          procSession.ExpiresAt,
		Lines:              lines,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockPayable(ctx, tx, act, ids); err != nil {
			return err
		}
		if open, err := s.openSessionForSet(ctx, tx, setKey); err != nil || open != nil {
			existing = open
			return err
		}
		if err := tx.Create(session).Error; err != nil {
			return errs.FromConstraint(err, "another checkout for these bookings was opened concurrently")
		}
		for _, l := range lines {
			if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
				BookingID: l.BookingID,
				Category:  audit.CategoryPayment,
				Type:      audit.TypeInfo,
				Action:    "checkout_opened",
				Actor:     act,
				Message:   fmt.Sprintf("checkout opened for %d", l.Amount),
				Metadata:  map[string]interface{}{"session_id": session.ID.String(), "payment_type": string(l.PaymentType)},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return toCheckoutResult(existing, true), nil
	}
	return toCheckoutResult(session, false), nil
}

// lockPayable locks the bookings in id order and checks that each one belongs
// to the caller and is waiting for payment.
func (s *Service) lockPayable(ctx context.Context, tx *gorm.DB, act actor.Actor, ids []uuid.UUID) ([]*bookings.Booking, error) {
	locked := make([]*bookings.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := bookings.Lock(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if !b.IsAdvertiser(act) {
			return nil, errs.Forbidden("booking %s does not belong to the caller", id)
		}
		if b.Status != bookings.StatusApproved {
			return nil, errs.InvalidTransition("booking %s is %s, only APPROVED bookings can be paid", id, b.Status)
		}
		locked = append(locked, b)
	}
	return locked, nil
}

func (s *Service) openSessionForSet(ctx context.Context, tx *gorm.DB, setKey uuid.UUID) (*CheckoutSession, error) {
	var session CheckoutSession
	err := tx.WithContext(ctx).
		Preload("Lines").
		Where("booking_set_key = ? AND status = ?", setKey, SessionOpen).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !s.Clock.Now().Before(session.ExpiresAt) {
		if err := tx.Model(&CheckoutSession{}).
			Where("id = ? AND status = ?", session.ID, SessionOpen).
			Update("status", SessionExpired).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &session, nil
}

func (s *Service) ensureNotInOtherSession(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	var line CheckoutLine
	err := tx.WithContext(ctx).
		Joins("JOIN checkout_sessions ON checkout_sessions.id = checkout_lines.session_id").
		Where("checkout_lines.booking_id IN ? AND checkout_sessions.status = ? AND checkout_sessions.expires_at > ?",
			ids, SessionOpen, s.Clock.Now()).
		First(&line).Error
	if err == nil {
		return errs.Validation("booking %s is already part of another open checkout", line.BookingID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func linesFor(locked []*bookings.Booking) ([]CheckoutLine, string) {
	lines := make([]CheckoutLine, 0, len(locked))
	currency := ""
	for _, b := range locked {
		lines = append(lines, CheckoutLine{
			BookingID:   b.ID,
			PaymentType: firstPaymentType(b),
			Amount:      b.FirstChargeAmount(),
		})
		if currency == "" {
			currency = b.Currency
		}
	}
	return lines, currency
}

func firstPaymentType(b *bookings.Booking) PaymentType {
	if b.PaymentPolicy == pricing.PolicyDeposit {
		return TypeDeposit
	}
	return TypeFull
}

func toCheckoutResult(session *CheckoutSession, reused bool) *CheckoutResult {
	ids := make([]uuid.UUID, 0, len(session.Lines))
	for _, l := range session.Lines {
		ids = append(ids, l.BookingID)
	}
	return &CheckoutResult{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		AmountDue:   session.AmountDue,
		Currency:    session.Currency,
		ExpiresAt:   session.ExpiresAt,
		BookingIDs:  ids,
		Reused:      reused,
	}
}

func normalizeIDs(raw []string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, errs.Validation("invalid booking id %q", r)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// bookingSetKey is a stable identifier for a sorted set of bookings.
func bookingSetKey(ids []uuid.UUID) uuid.UUID {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, ",")))
}

// ListByBooking returns the payments and refunds of a booking.
func (s *Service) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Payment, []Refund, error) {
	var payments []Payment
	if err := s.DB.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&payments).Error; err != nil {
		return nil, nil, err
	}
	var refunds []Refund
	if err := s.DB.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&refunds).Error; err != nil {
		return nil, nil, err
	}
	return payments, refunds, nil
}

func createIgnoringDuplicate(ctx context.Context, tx *gorm.DB, value interface{}) (bool, error) {
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
