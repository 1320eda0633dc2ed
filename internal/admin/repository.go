package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adspace/internal/bookings"
	"adspace/internal/payments"
	"adspace/internal/payouts"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads the cross-aggregate views of the admin console.
type Repository interface {
	ListFlows(ctx context.Context, q PaymentFlowQuery, c Cutoffs) ([]PaymentFlowRow, int64, error)
	Summary(ctx context.Context, q PaymentFlowQuery, c Cutoffs) (*FlowSummary, error)
	Snapshot(ctx context.Context, bookingID uuid.UUID) (*Snapshot, error)
	SaveAction(ctx context.Context, action *AdminAction) error
	ListActions(ctx context.Context, bookingID uuid.UUID) ([]AdminAction, error)
}

// Cutoffs are the instants before which an in-flight money movement counts
// as stuck.
type Cutoffs struct {
	Transfer time.Time
	Refund   time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// attentionSQL matches bookings that need an override. It mirrors
// evaluateAttention, which explains the reason per row.
const attentionSQL = `(
	bookings.status = 'DISPUTED'
	OR bookings.balance_charge_error <> ''
	OR EXISTS (
		SELECT 1 FROM payouts p
		WHERE p.booking_id = bookings.id
		AND (p.status IN ('FAILED', 'PARTIALLY_PAID') OR (p.status = 'PROCESSING' AND p.last_attempt_at <= ?))
	)
	OR EXISTS (
		SELECT 1 FROM refunds rf
		WHERE rf.booking_id = bookings.id AND rf.status = 'PENDING' AND rf.created_at <= ?
	)
	OR (bookings.status IN ('CANCELLED', 'REJECTED') AND EXISTS (
		SELECT 1 FROM payments pm
		WHERE pm.booking_id = bookings.id
		AND pm.status IN ('SUCCEEDED', 'PARTIALLY_REFUNDED')
		AND pm.amount > pm.refunded_amount
		AND NOT EXISTS (
			SELECT 1 FROM refunds r WHERE r.payment_id = pm.id AND r.status = 'PENDING'
		)
	))
)`

func (r *repository) filtered(ctx context.Context, q PaymentFlowQuery) *gorm.DB {
	db := r.db.WithContext(ctx).
		Table("bookings").
		Joins("LEFT JOIN spaces ON spaces.id = bookings.space_id")
	if q.Status != "" {
		db = db.Where("bookings.status = ?", strings.ToUpper(q.Status))
	}
	if q.PayoutStatus != "" {
		db = db.Where("EXISTS (SELECT 1 FROM payouts p WHERE p.booking_id = bookings.id AND p.status = ?)", strings.ToUpper(q.PayoutStatus))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		db = db.Where("(LOWER(spaces.name) LIKE ? OR LOWER(spaces.location) LIKE ? OR CAST(bookings.id AS TEXT) LIKE ?)", like, like, like)
	}
	return db
}

type flowRow struct {
	bookings.Booking
	SpaceName string
}

func (r *repository) ListFlows(ctx context.Context, q PaymentFlowQuery, c Cutoffs) ([]PaymentFlowRow, int64, error) {
	var total int64
	if err := r.filtered(ctx, q).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payment flows: %w", err)
	}

	var rows []flowRow
	offset := (q.Page - 1) * q.Limit
	if err := r.filtered(ctx, q).
		Select("bookings.*, spaces.name AS space_name").
		Order("bookings.updated_at DESC").
		Offset(offset).
		Limit(q.Limit).
		Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payment flows: %w", err)
	}
	if len(rows) == 0 {
		return []PaymentFlowRow{}, total, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var paymentList []payments.Payment
	if err := r.db.WithContext(ctx).Where("booking_id IN ?", ids).Find(&paymentList).Error; err != nil {
		return nil, 0, err
	}
	var refundList []payments.Refund
	if err := r.db.WithContext(ctx).Where("booking_id IN ?", ids).Find(&refundList).Error; err != nil {
		return nil, 0, err
	}
	var payoutList []payouts.Payout
	if err := r.db.WithContext(ctx).Where("booking_id IN ?", ids).Order("stage ASC").Find(&payoutList).Error; err != nil {
		return nil, 0, err
	}

	byBooking := make(map[uuid.UUID]*PaymentFlowRow, len(rows))
	result := make([]PaymentFlowRow, len(rows))
	for i, row := range rows {
		result[i] = PaymentFlowRow{
			BookingID:          row.ID,
			SpaceID:            row.SpaceID,
			SpaceName:          row.SpaceName,
			AdvertiserID:       row.AdvertiserID,
			OwnerID:            row.OwnerID,
			Status:             row.Status,
			StartDate:          row.StartDate,
			EndDate:            row.EndDate,
			Total:              row.Total,
			PayoutAmount:       row.PayoutAmount,
			BalanceChargeError: row.BalanceChargeError,
			Payouts:            []PayoutSummary{},
			UpdatedAt:          row.UpdatedAt,
		}
		byBooking[row.ID] = &result[i]
	}
	pendingRefund := make(map[uuid.UUID]bool)
	stuckRefund := make(map[uuid.UUID]bool)
	for _, rf := range refundList {
		if rf.Status == payments.RefundPending {
			pendingRefund[rf.PaymentID] = true
			if !rf.CreatedAt.After(c.Refund) {
				stuckRefund[rf.BookingID] = true
			}
		}
	}
	unrefunded := make(map[uuid.UUID]bool)
	for _, p := range paymentList {
		row := byBooking[p.BookingID]
		if p.Status.Collected() {
			row.Collected += p.Amount
			row.Refunded += p.RefundedAmount
			if p.Amount > p.RefundedAmount && p.Status != payments.PaymentRefunded && !pendingRefund[p.ID] {
				unrefunded[p.BookingID] = true
			}
		}
	}
	for _, p := range payoutList {
		row := byBooking[p.BookingID]
		row.PaidOut += p.PaidAmount
		row.Payouts = append(row.Payouts, PayoutSummary{
			ID:            p.ID,
			Stage:         p.Stage,
			Status:        p.Status,
			Amount:        p.Amount,
			PaidAmount:    p.PaidAmount,
			AttemptCount:  p.AttemptCount,
			FailureReason: p.FailureReason,
		})
		if needsRetry(p, c.Transfer) && !row.NeedsAttention && row.Status != bookings.StatusDisputed {
			row.NeedsAttention = true
			row.SuggestedAction = SuggestRetryPayout
			row.AttentionReason = fmt.Sprintf("%s payout is %s", p.Stage, p.Status)
		}
	}
	for i := range result {
		id := result[i].BookingID
		evaluateAttention(&result[i], attentionFlags{unrefunded: unrefunded[id], stuckRefund: stuckRefund[id]})
	}
	return result, total, nil
}

func needsRetry(p payouts.Payout, staleBefore time.Time) bool {
	switch p.Status {
	case payouts.StatusFailed, payouts.StatusPartiallyPaid:
		return true
	case payouts.StatusProcessing:
		return p.LastAttemptAt != nil && !p.LastAttemptAt.After(staleBefore)
	}
	return false
}

type attentionFlags struct {
	unrefunded  bool
	stuckRefund bool
}

// evaluateAttention fills the non-payout reasons in priority order; a
// dispute always wins.
func evaluateAttention(row *PaymentFlowRow, f attentionFlags) {
	switch {
	case row.Status == bookings.StatusDisputed:
		row.NeedsAttention = true
		row.SuggestedAction = SuggestResolveDispute
		row.AttentionReason = "booking is disputed"
	case row.NeedsAttention:
	case f.stuckRefund:
		row.NeedsAttention = true
		row.SuggestedAction = SuggestRetryRefund
		row.AttentionReason = "refund not confirmed by the processor"
	case row.BalanceChargeError != "":
		row.NeedsAttention = true
		row.SuggestedAction = SuggestRetryBalance
		row.AttentionReason = "balance charge failed: " + row.BalanceChargeError
	case f.unrefunded && (row.Status == bookings.StatusCancelled || row.Status == bookings.StatusRejected):
		row.NeedsAttention = true
		row.SuggestedAction = SuggestRefund
		row.AttentionReason = fmt.Sprintf("payment kept on a %s booking", row.Status)
	}
}

func (r *repository) Summary(ctx context.Context, q PaymentFlowQuery, c Cutoffs) (*FlowSummary, error) {
	var summary FlowSummary
	if err := r.filtered(ctx, q).Count(&summary.Bookings).Error; err != nil {
		return nil, err
	}
	ids := r.filtered(ctx, q).Select("bookings.id")

	if err := r.db.WithContext(ctx).Model(&payments.Payment{}).
		Where("booking_id IN (?) AND status IN ?", ids, []payments.PaymentStatus{payments.PaymentSucceeded, payments.PaymentPartiallyRefunded, payments.PaymentRefunded}).
		Select("COALESCE(SUM(amount), 0)").Scan(&summary.Collected).Error; err != nil {
		return nil, fmt.Errorf("failed to sum collected payments: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&payments.Payment{}).
		Where("booking_id IN (?)", ids).
		Select("COALESCE(SUM(refunded_amount), 0)").Scan(&summary.Refunded).Error; err != nil {
		return nil, fmt.Errorf("failed to sum refunds: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&payouts.Payout{}).
		Where("booking_id IN (?)", ids).
		Select("COALESCE(SUM(paid_amount), 0)").Scan(&summary.PaidOut).Error; err != nil {
		return nil, fmt.Errorf("failed to sum payouts: %w", err)
	}
	if err := r.filtered(ctx, q).Where(attentionSQL, c.Transfer, c.Refund).Count(&summary.NeedsAttention).Error; err != nil {
		return nil, fmt.Errorf("failed to count flows needing attention: %w", err)
	}
	return &summary, nil
}

func (r *repository) Snapshot(ctx context.Context, bookingID uuid.UUID) (*Snapshot, error) {
	var b bookings.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", bookingID).First(&b).Error; err != nil {
		return nil, err
	}
	snap := &Snapshot{Booking: &b}
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&snap.Payments).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&snap.Refunds).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("stage ASC").Find(&snap.Payouts).Error; err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *repository) SaveAction(ctx context.Context, action *AdminAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *repository) ListActions(ctx context.Context, bookingID uuid.UUID) ([]AdminAction, error) {
	var actions []AdminAction
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&actions).Error
	return actions, err
}
