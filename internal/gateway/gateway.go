// Package gateway isolates the core from any specific airtime/bill vendor
// protocol behind a single synchronous Send operation with a uniform
// success/failure contract.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result is the vendor-neutral outcome of a Send. NumSent == 0 is treated
// by callers exactly like a transport error: both trigger compensation.
type Result struct {
	NumSent      int
	ErrorMessage string
}

// PaymentGateway delivers value (airtime, bill payment) to a phone number.
// Implementations are expected to be slow and failure-prone; callers must
// never invoke Send while holding an account lease.
type PaymentGateway interface {
	Send(ctx context.Context, recipientPhone string, amount decimal.Decimal) (*Result, error)
}

// Select returns the gateway for the given environment. Only the sandbox
// exists today; production deployments get it too, with a loud warning,
// until a vendor client lands.
func Select(env string, log *zap.Logger) PaymentGateway {
	if env == "production" {
		log.Warn("no vendor gateway configured, using sandbox; airtime delivery is simulated",
			zap.String("env", env))
	}
	return NewSandbox()
}

// Sandbox simulates a vendor endpoint for development and tests. Phone
// numbers registered with Fail are rejected; an optional latency emulates
// a real transport so timeout paths can be exercised.
type Sandbox struct {
	mu      sync.Mutex
	failing map[string]string
	latency time.Duration
	sent    []SentRecord
}

type SentRecord struct {
	Phone  string
	Amount decimal.Decimal
}

func NewSandbox() *Sandbox {
	return &Sandbox{failing: make(map[string]string)}
}

// Fail makes every Send to phone report failure with the given message.
func (s *Sandbox) Fail(phone, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[phone] = message
}

// SetLatency delays every Send, honouring context cancellation.
func (s *Sandbox) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Sent returns every successful delivery so far.
func (s *Sandbox) Sent() []SentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentRecord(nil), s.sent...)
}

func (s *Sandbox) Send(ctx context.Context, recipientPhone string, amount decimal.Decimal) (*Result, error) {
	s.mu.Lock()
	latency := s.latency
	msg, failing := s.failing[recipientPhone]
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, fmt.Errorf("gateway send: %w", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gateway send: %w", err)
	}
	if failing {
		return &Result{NumSent: 0, ErrorMessage: msg}, nil
	}

	s.mu.Lock()
	s.sent = append(s.sent, SentRecord{Phone: recipientPhone, Amount: amount})
	s.mu.Unlock()
	return &Result{NumSent: 1}, nil
}

// ErrGatewayDown is returned by Broken for tests of the transport-error path.
var ErrGatewayDown = errors.New("gateway unreachable")

// Broken is a gateway whose transport always fails.
type Broken struct{}

func (Broken) Send(ctx context.Context, recipientPhone string, amount decimal.Decimal) (*Result, error) {
	return nil, ErrGatewayDown
}
