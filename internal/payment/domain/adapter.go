package domain

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/clock"
)

// Gateway is one provider bound to one organizer configuration. Verify must
// succeed before Parse output is trusted.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// StatusPoller is implemented by gateways that can be asked for the state of
// a pending payment. A nil event means the payment is still pending.
type StatusPoller interface {
	PollStatus(ctx context.Context, reference string) (*PaymentEvent, error)
}

type AdapterConfig struct {
	OrganizerID uuid.UUID
	Provider    string
	Config      map[string]any
	HTTPClient  *http.Client
	Clock       clock.Clock
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

// Gateways resolves the gateway configured by an organizer.
type Gateways interface {
	ProviderExists(provider string) bool
	Gateway(ctx context.Context, organizerID uuid.UUID, provider string) (Gateway, error)
}

// EventProcessor applies a verified payment event to its order.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *PaymentEvent) error
}
