package tradefeed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/config"
)

var ErrTopicNotReady = errors.New("trade topic not ready")

// TopicLayout describes the trade topic. Trades are keyed by instrument, so
// per-instrument order holds for any partition count.
type TopicLayout struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	ReadyChecks       int
	ReadyBackoff      time.Duration
}

func TopicLayoutFromConfig(cfg config.KafkaConfig) TopicLayout {
	return TopicLayout{
		Name:              cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		ReadyChecks:       cfg.TopicReadyChecks,
		ReadyBackoff:      cfg.TopicReadyBackoff,
	}
}

func (s TopicLayout) validate() error {
	switch {
	case s.Name == "":
		return errors.New("topic name is empty")
	case s.Partitions < 1:
		return fmt.Errorf("topic %s needs at least one partition", s.Name)
	case s.ReplicationFactor < 1:
		return fmt.Errorf("topic %s needs a replication factor of at least one", s.Name)
	}
	return nil
}

// TopicCreator provisions the trade topic before the gateway starts
// publishing, so the caller can pick another sink when Kafka is unusable.
type TopicCreator struct {
	logger  *zap.Logger
	dialer  KafkaDialer
	sleeper Sleeper
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, sleeper Sleeper) *TopicCreator {
	return &TopicCreator{
		logger:  logger,
		dialer:  dialer,
		sleeper: sleeper,
	}
}

// Create asks the cluster controller for the topic and waits until its
// partitions show up in metadata. An existing topic counts as success.
func (tc *TopicCreator) Create(ctx context.Context, brokers []string, layout TopicLayout) error {
	if err := layout.validate(); err != nil {
		return err
	}

	conn, addr, err := tc.dialAny(ctx, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	admin, err := tc.controller(ctx, conn, addr)
	if err != nil {
		return err
	}
	if admin != conn {
		defer admin.Close()
	}

	err = admin.CreateTopics(kafka.TopicConfig{
		Topic:             layout.Name,
		NumPartitions:     layout.Partitions,
		ReplicationFactor: layout.ReplicationFactor,
	})
	switch {
	case errors.Is(err, kafka.TopicAlreadyExists):
		tc.logger.Info("Trade topic already exists", zap.String("topic", layout.Name))
	case err != nil:
		return fmt.Errorf("create topic %s: %w", layout.Name, err)
	default:
		tc.logger.Info("Trade topic created",
			zap.String("topic", layout.Name),
			zap.Int("partitions", layout.Partitions),
			zap.Int("replication_factor", layout.ReplicationFactor))
	}

	return tc.awaitPartitions(ctx, conn, layout)
}

func (tc *TopicCreator) dialAny(ctx context.Context, brokers []string) (KafkaConn, string, error) {
	if len(brokers) == 0 {
		return nil, "", errors.New("no brokers configured")
	}
	var errs []error
	for _, addr := range brokers {
		conn, err := tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, addr, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return nil, "", fmt.Errorf("no reachable broker: %w", errors.Join(errs...))
}

// controller reuses conn when the broker we reached is already the controller.
func (tc *TopicCreator) controller(ctx context.Context, conn KafkaConn, addr string) (KafkaConn, error) {
	broker, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("lookup controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port))
	if controllerAddr == addr {
		return conn, nil
	}
	admin, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return nil, fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	return admin, nil
}

func (tc *TopicCreator) awaitPartitions(ctx context.Context, conn KafkaConn, layout TopicLayout) error {
	checks := max(layout.ReadyChecks, 1)
	backoff := layout.ReadyBackoff

	for i := 0; i < checks; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTopicNotReady, layout.Name, err)
		}
		partitions, err := conn.ReadPartitions(layout.Name)
		if err == nil && len(partitions) > 0 {
			if len(partitions) < layout.Partitions {
				tc.logger.Warn("Trade topic has fewer partitions than configured",
					zap.String("topic", layout.Name),
					zap.Int("have", len(partitions)),
					zap.Int("want", layout.Partitions))
			}
			return nil
		}
		if i < checks-1 {
			tc.sleeper.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: %s after %d checks", ErrTopicNotReady, layout.Name, checks)
}
