package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// watermillLogger adapts our zap.Logger to watermill.LoggerAdapter.
type watermillLogger struct {
	l *zap.Logger
}

func newWatermillLogger(l *zap.Logger) watermill.LoggerAdapter { return &watermillLogger{l: l} }

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error(msg, zap.Error(err), zap.Any("fields", fields))
}
func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Info(msg, zap.Any("fields", fields))
}
func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.Debug(msg, zap.Any("fields", fields))
}
func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.l.Debug(msg, zap.Any("fields", fields))
}
func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{l: w.l.With(zap.Any("fields", fields))}
}

// NewInProcessPublisher backs the event queue with an in-memory
// gochannel topic: the default for development and the fixture used by
// handler tests.
func NewInProcessPublisher(logger *zap.Logger) message.Publisher {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, newWatermillLogger(logger))
	return pubSub
}

// NewAMQPPublisher backs the event queue with a durable AMQP broker
// (e.g. RabbitMQ), for deployments that want lifecycle events to survive
// broker restarts.
func NewAMQPPublisher(amqpURI string, logger *zap.Logger) (message.Publisher, error) {
	config := amqp.NewDurablePubSubConfig(amqpURI, nil)
	return amqp.NewPublisher(config, newWatermillLogger(logger))
}
