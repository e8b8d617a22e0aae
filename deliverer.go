package otpgate

import (
	"context"
	"log"
	"time"
)

// DeliveryKind says what a Delivery carries.
type DeliveryKind string

const (
	DeliverySignupCode DeliveryKind = "signup_code"
	DeliverySigninCode DeliveryKind = "signin_code"
	DeliveryResetToken DeliveryKind = "reset_token"
)

// Delivery is one secret bound for one destination. Secret is plaintext and
// exists only for the duration of the Deliver call.
type Delivery struct {
	Kind        DeliveryKind
	Destination string
	Secret      string
	ExpiresAt   time.Time
}

// Deliverer moves a secret to its owner out of band (email, SMS, a queue).
// A returned error makes the engine withdraw the secret and report
// ErrDeliveryFailed.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, d Delivery) error

func (f DelivererFunc) Deliver(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// LogDeliverer writes deliveries to a logger. The secret is printed only when
// RevealSecrets is set, which is for local development.
type LogDeliverer struct {
	Logger        *log.Logger
	RevealSecrets bool
}

func (d LogDeliverer) Deliver(_ context.Context, delivery Delivery) error {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	if d.RevealSecrets {
		logger.Printf("delivery kind=%s to=%s secret=%s expires=%s",
			delivery.Kind, delivery.Destination, delivery.Secret, delivery.ExpiresAt.Format(time.RFC3339))
		return nil
	}
	logger.Printf("delivery kind=%s to=%s expires=%s",
		delivery.Kind, delivery.Destination, delivery.ExpiresAt.Format(time.RFC3339))
	return nil
}
