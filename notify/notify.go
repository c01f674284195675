package notify

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/logging"
	"go.uber.org/zap"
)

// ErrDeliveryFailed wraps every delivery failure. The wrapped detail never
// contains the code.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Message is one code delivery. Purpose is informational, for templates and logs.
type Message struct {
	Destination string
	Code        string
	Purpose     string
}

// Dispatcher delivers one-time codes to a contact channel.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Func adapts a function to Dispatcher.
type Func func(ctx context.Context, msg Message) error

func (f Func) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Redact returns the destination safe for logging.
func Redact(destination string) string {
	return logging.RedactPhone(destination)
}

// LogDispatcher records deliveries on a zap logger instead of a provider.
// It stands in for a gateway in development; the code itself is dropped.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher returns a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger.Named("notify")}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	d.logger.Info("one-time code dispatched",
		zap.String("destination", Redact(msg.Destination)),
		zap.String("purpose", msg.Purpose),
	)
	return nil
}
