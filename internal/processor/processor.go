// Package processor is the boundary to the external payment processor:
// hosted checkout, off-session charges, transfers to owners and refunds.
package processor

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnacknowledged means the request may have been executed but no
	// response was received. Callers must reconcile by idempotency key.
	ErrUnacknowledged = errors.New("processor did not acknowledge the request")
	ErrNotFound       = errors.New("processor object not found")
)

// DeclineError is a definitive refusal by the processor.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string {
	return "declined (" + e.Code + "): " + e.Reason
}

type CheckoutLine struct {
	Reference   string
	Description string
	Amount      int64
}

type CheckoutRequest struct {
	IdempotencyKey string
	CustomerRef    string
	Currency       string
	Lines          []CheckoutLine
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
}

type CheckoutSession struct {
	ID          string
	URL         string
	AmountTotal int64
	ExpiresAt   time.Time
}

type ChargeRequest struct {
	IdempotencyKey string
	// PaymentMethodRef is the reusable method saved at checkout.
	PaymentMethodRef string
	Amount           int64
	Currency         string
	Metadata         map[string]string
}

type Charge struct {
	ID     string
	Amount int64
	Fee    int64
}

type TransferStatus string

const (
	TransferSucceeded TransferStatus = "succeeded"
	TransferPartial   TransferStatus = "partial"
	TransferFailed    TransferStatus = "failed"
)

type TransferRequest struct {
	IdempotencyKey string
	Destination    string
	Amount         int64
	Currency       string
	Metadata       map[string]string
}

type Transfer struct {
	ID             string
	IdempotencyKey string
	Destination    string
	Requested      int64
	Paid           int64
	Status         TransferStatus
	FailureReason  string
}

type RefundRequest struct {
	IdempotencyKey string
	ChargeRef      string
	Amount         int64
	Reason         string
}

type Refund struct {
	ID     string
	Amount int64
}

type Processor interface {
	EstimateFee(amount int64) int64
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ChargeOffSession(ctx context.Context, req ChargeRequest) (*Charge, error)
	Transfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	LookupTransfer(ctx context.Context, idempotencyKey string) (*Transfer, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	LookupRefund(ctx context.Context, idempotencyKey string) (*Refund, error)
}
