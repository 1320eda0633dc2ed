package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"

	"github.com/bwmarrin/snowflake"
)

type Operation string

const (
	OpCheckout Operation = "checkout"
	OpCharge   Operation = "charge"
	OpTransfer Operation = "transfer"
	OpRefund   Operation = "refund"
)

type FaultMode int

const (
	// FaultDecline makes the processor refuse the request.
	FaultDecline FaultMode = iota + 1
	// FaultUnacknowledged executes the request but reports ErrUnacknowledged.
	FaultUnacknowledged
	// FaultPartial pays only Fault.Amount of a transfer.
	FaultPartial
	// FaultUnavailable fails without executing anything.
	FaultUnavailable
)

type Fault struct {
	Mode   FaultMode
	Amount int64
	Code   string
	Reason string
}

type sandboxSession struct {
	session  CheckoutSession
	customer string
	currency string
	metadata map[string]string
}

// Sandbox is an in-process processor used for local runs and tests. It keeps
// idempotency semantics: replaying a key returns the original object.
type Sandbox struct {
	mu     sync.Mutex
	node   *snowflake.Node
	cfg    config.ProcessorConfig
	clock  clock.Clock
	faults map[Operation][]Fault

	sessions         map[string]*sandboxSession
	sessionsByKey    map[string]string
	charges          map[string]*Charge
	transfers        map[string]*Transfer
	refunds          map[string]*Refund
	transferRequests int
	refundRequests   int
}

func NewSandbox(cfg config.ProcessorConfig, clk clock.Clock) (*Sandbox, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create id node: %w", err)
	}
	return &Sandbox{
		node:          node,
		cfg:           cfg,
		clock:         clk,
		faults:        make(map[Operation][]Fault),
		sessions:      make(map[string]*sandboxSession),
		sessionsByKey: make(map[string]string),
		charges:       make(map[string]*Charge),
		transfers:     make(map[string]*Transfer),
		refunds:       make(map[string]*Refund),
	}, nil
}

// Inject queues a fault for the next call of op.
func (s *Sandbox) Inject(op Operation, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], f)
}

func (s *Sandbox) nextFault(op Operation) *Fault {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	f := queue[0]
	s.faults[op] = queue[1:]
	return &f
}

func (s *Sandbox) newID(prefix string) string {
	return prefix + "_" + s.node.Generate().String()
}

func (s *Sandbox) EstimateFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*s.cfg.FeeBasisPoints+5000)/10000 + s.cfg.FeeFixedCents
}

func (s *Sandbox) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.sessionsByKey[req.IdempotencyKey]; ok {
		out := s.sessions[id].session
		return &out, nil
	}
	if f := s.nextFault(OpCheckout); f != nil {
		return nil, s.faultError(f)
	}

	var total int64
	for _, l := range req.Lines {
		total += l.Amount
	}
	id := s.newID("cs")
	sess := &sandboxSession{
		session: CheckoutSession{
			ID:          id,
			URL:         s.cfg.CheckoutBaseURL + "/" + id,
			AmountTotal: total,
			ExpiresAt:   s.clock.Now().Add(24 * time.Hour),
		},
		customer: req.CustomerRef,
		currency: req.Currency,
		metadata: req.Metadata,
	}
	s.sessions[id] = sess
	s.sessionsByKey[req.IdempotencyKey] = id

	out := sess.session
	return &out, nil
}

func (s *Sandbox) ChargeOffSession(ctx context.Context, req ChargeRequest) (*Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.charges[req.IdempotencyKey]; ok {
		out := *c
		return &out, nil
	}
	if req.PaymentMethodRef == "" {
		return nil, &DeclineError{Code: "no_payment_method", Reason: "no saved payment method"}
	}
	f := s.nextFault(OpCharge)
	if f != nil && f.Mode != FaultUnacknowledged {
		return nil, s.faultError(f)
	}

	c := &Charge{ID: s.newID("ch"), Amount: req.Amount, Fee: s.EstimateFee(req.Amount)}
	s.charges[req.IdempotencyKey] = c
	if f != nil {
		return nil, ErrUnacknowledged
	}
	out := *c
	return &out, nil
}

func (s *Sandbox) Transfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.transfers[req.IdempotencyKey]; ok {
		out := *t
		return &out, nil
	}
	f := s.nextFault(OpTransfer)
	if f != nil && (f.Mode == FaultDecline || f.Mode == FaultUnavailable) {
		return nil, s.faultError(f)
	}

	s.transferRequests++
	t := &Transfer{
		ID:             s.newID("tr"),
		IdempotencyKey: req.IdempotencyKey,
		Destination:    req.Destination,
		Requested:      req.Amount,
		Paid:           req.Amount,
		Status:         TransferSucceeded,
	}
	if f != nil && f.Mode == FaultPartial {
		t.Paid = f.Amount
		t.Status = TransferPartial
		t.FailureReason = f.Reason
		if t.FailureReason == "" {
			t.FailureReason = "destination accepted a partial amount"
		}
	}
	s.transfers[req.IdempotencyKey] = t

	if f != nil && f.Mode == FaultUnacknowledged {
		return nil, ErrUnacknowledged
	}
	out := *t
	return &out, nil
}

func (s *Sandbox) LookupTransfer(ctx context.Context, idempotencyKey string) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[idempotencyKey]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *Sandbox) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.refunds[req.IdempotencyKey]; ok {
		out := *r
		return &out, nil
	}
	f := s.nextFault(OpRefund)
	if f != nil && f.Mode != FaultUnacknowledged {
		return nil, s.faultError(f)
	}

	s.refundRequests++
	r := &Refund{ID: s.newID("re"), Amount: req.Amount}
	s.refunds[req.IdempotencyKey] = r
	if f != nil {
		return nil, ErrUnacknowledged
	}
	out := *r
	return &out, nil
}

func (s *Sandbox) LookupRefund(ctx context.Context, idempotencyKey string) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refunds[idempotencyKey]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *Sandbox) faultError(f *Fault) error {
	switch f.Mode {
	case FaultDecline:
		code := f.Code
		if code == "" {
			code = "card_declined"
		}
		reason := f.Reason
		if reason == "" {
			reason = "the request was declined"
		}
		return &DeclineError{Code: code, Reason: reason}
	case FaultUnacknowledged:
		return ErrUnacknowledged
	default:
		return fmt.Errorf("sandbox processor unavailable")
	}
}

// TransferredTo sums everything actually paid out to destination.
func (s *Sandbox) TransferredTo(destination string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, t := range s.transfers {
		if t.Destination == destination {
			total += t.Paid
		}
	}
	return total
}

// TransferRequests counts transfers the sandbox actually executed.
func (s *Sandbox) TransferRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferRequests
}

// RefundRequests counts refunds the sandbox actually executed.
func (s *Sandbox) RefundRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refundRequests
}

// CompleteCheckout builds the signed checkout.session.completed webhook the
// processor would deliver after the customer pays.
func (s *Sandbox) CompleteCheckout(sessionID string) ([]byte, string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, "", ErrNotFound
	}
	charge := &Charge{
		ID:     s.newID("ch"),
		Amount: sess.session.AmountTotal,
		Fee:    s.EstimateFee(sess.session.AmountTotal),
	}
	s.charges["checkout:"+sessionID] = charge
	event := Event{
		ID:      s.newID("evt"),
		Type:    EventCheckoutCompleted,
		Created: s.clock.Now().Unix(),
		Data: EventObject{
			SessionID:        sessionID,
			ChargeID:         charge.ID,
			PaymentMethodRef: "pm_" + sess.customer,
			AmountTotal:      charge.Amount,
			Fee:              charge.Fee,
			Currency:         sess.currency,
			Metadata:         sess.metadata,
		},
	}
	s.mu.Unlock()
	return s.signEvent(event)
}

// ExpireCheckout builds the signed checkout.session.expired webhook.
func (s *Sandbox) ExpireCheckout(sessionID string) ([]byte, string, error) {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		return nil, "", ErrNotFound
	}
	event := Event{
		ID:      s.newID("evt"),
		Type:    EventCheckoutExpired,
		Created: s.clock.Now().Unix(),
		Data:    EventObject{SessionID: sessionID},
	}
	s.mu.Unlock()
	return s.signEvent(event)
}

// SignEvent signs an arbitrary event with the configured webhook secret.
func (s *Sandbox) SignEvent(event Event) ([]byte, string, error) {
	return s.signEvent(event)
}

func (s *Sandbox) signEvent(event Event) ([]byte, string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, "", err
	}
	return payload, Sign(payload, s.cfg.WebhookSecret, s.clock.Now()), nil
}
