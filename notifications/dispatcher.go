package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/ThreeDotsLabs/watermill"
	wmmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Deliverer pushes an event to one channel (websocket viewers, email, ...).
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

type DispatcherConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	CloseTimeout    time.Duration
	// Registry, when set, receives watermill's router metrics.
	Registry *prometheus.Registry
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		CloseTimeout:    5 * time.Second,
	}
}

// Dispatcher consumes queued events and fans each one out to every Deliverer. A delivery that
// still fails after retries is logged, counted and dropped.
type Dispatcher struct {
	router  *message.Router
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// PubSub is what the dispatcher consumes from and, for per-recipient delivery, republishes to.
type PubSub interface {
	message.Publisher
	message.Subscriber
}

// RecipientDeliverer is a Deliverer that addresses users one by one. The dispatcher splits its
// events into one message per recipient.
type RecipientDeliverer interface {
	Deliverer
	DeliversPerRecipient() bool
}

func NewDispatcher(
	pubsub PubSub,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg DispatcherConfig,
	deliverers ...Deliverer,
) (*Dispatcher, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification router: %w", err)
	}

	d := &Dispatcher{router: router, logger: logger, metrics: m}

	if cfg.Registry != nil {
		wmmetrics.NewPrometheusMetricsBuilder(cfg.Registry, "bracket_engine", "notifications").AddPrometheusRouterMetrics(router)
	}

	router.AddMiddleware(
		d.dropFailed,
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			Logger:          wmLogger,
		}.Middleware,
	)

	for _, deliverer := range deliverers {
		name := "notifications." + deliverer.Name()
		if rd, ok := deliverer.(RecipientDeliverer); ok && rd.DeliversPerRecipient() {
			// one message per recipient, so Retry only repeats the recipient that failed
			perRecipientTopic := Topic + "." + deliverer.Name()
			router.AddHandler(name+".split", Topic, pubsub, perRecipientTopic, pubsub, d.splitByRecipient(deliverer))
			router.AddNoPublisherHandler(name, perRecipientTopic, pubsub, d.handle(deliverer))
			continue
		}
		router.AddNoPublisherHandler(name, Topic, pubsub, d.handle(deliverer))
	}
	return d, nil
}

func (d *Dispatcher) splitByRecipient(deliverer Deliverer) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		event, err := decodeEvent(msg)
		if err != nil {
			d.logger.Error("dropping undecodable notification", slog.String("message_uuid", msg.UUID), slog.Any("error", err))
			d.metrics.NotificationFailed("decode", deliverer.Name())
			return nil, nil
		}
		out := make([]*message.Message, 0, len(event.Recipients))
		for _, userID := range event.Recipients {
			single := event
			single.Recipients = []uuid.UUID{userID}
			m, err := encodeEvent(single)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil
	}
}

func (d *Dispatcher) handle(deliverer Deliverer) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		event, err := decodeEvent(msg)
		if err != nil {
			// Retrying cannot fix a malformed payload.
			d.logger.Error("dropping undecodable notification", slog.String("message_uuid", msg.UUID), slog.Any("error", err))
			d.metrics.NotificationFailed("decode", deliverer.Name())
			return nil
		}
		return deliverer.Deliver(msg.Context(), event)
	}
}

// dropFailed acks messages whose delivery failed for good so the subscriber never redelivers them.
func (d *Dispatcher) dropFailed(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err != nil {
			handler := message.HandlerNameFromCtx(msg.Context())
			d.logger.Error("notification delivery failed",
				slog.String("handler", handler),
				slog.String("event_type", msg.Metadata.Get("event_type")),
				slog.String("correlation_id", middleware.MessageCorrelationID(msg)),
				slog.Any("error", err),
			)
			d.metrics.NotificationFailed("deliver", handler)
			return nil, nil
		}
		return produced, nil
	}
}

// Run blocks until ctx is cancelled or the router is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (d *Dispatcher) Running() chan struct{} {
	return d.router.Running()
}

func (d *Dispatcher) Close() error {
	return d.router.Close()
}
