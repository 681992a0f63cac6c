package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/quotations/internal/services"
)

// Payment statuses recorded on quotations.
const (
	// StatusCreated marks an offline payment awaiting collection.
	StatusCreated = "created"
	// StatusAuthorized marks funds held by the provider awaiting capture.
	StatusAuthorized = "authorized"
	// StatusCaptured marks a payment the provider settled immediately.
	StatusCaptured = "captured"
)

// ErrUnsupportedMethod is returned when a registration names an empty method or provider.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// Registry maps payment method names to the provider that authorizes them.
type Registry struct {
	methods map[string]services.PaymentAuthorizer
}

// NewRegistry builds a registry from method name to authorizer. Names are matched case-sensitively after
// trimming, as shops store them.
func NewRegistry(methods map[string]services.PaymentAuthorizer) (*Registry, error) {
	registry := &Registry{methods: make(map[string]services.PaymentAuthorizer, len(methods))}
	for name, authorizer := range methods {
		if err := registry.Register(name, authorizer); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds or replaces the authorizer for name.
func (r *Registry) Register(name string, authorizer services.PaymentAuthorizer) error {
	key := strings.TrimSpace(name)
	if key == "" || authorizer == nil {
		return fmt.Errorf("%w: invalid registration for %q", ErrUnsupportedMethod, name)
	}
	r.methods[key] = authorizer
	return nil
}

// PaymentMethod implements services.PaymentMethodRegistry.
func (r *Registry) PaymentMethod(name string) (services.PaymentAuthorizer, bool) {
	if r == nil {
		return nil, false
	}
	authorizer, ok := r.methods[strings.TrimSpace(name)]
	return authorizer, ok
}

// Len reports the number of registered methods.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.methods)
}

var _ services.PaymentMethodRegistry = (*Registry)(nil)
