package di

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

// KafkaProducer publishes appointment and billing events.
type KafkaProducer struct {
	writer *kafka.Writer
	Logger *logrus.Logger
}

func NewKafkaProducer(brokers []string, topic string, logger *logrus.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		// events of one appointment land on one partition and stay ordered
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaProducer{writer: writer, Logger: logger}
}

// eventMessage keys the message by appointment id.
func eventMessage(event domain.AppointmentEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.AppointmentID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
		Time: event.OccurredAt,
	}, nil
}

func (kp *KafkaProducer) Publish(ctx context.Context, event domain.AppointmentEvent) error {
	msg, err := eventMessage(event)
	if err != nil {
		return err
	}
	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	kp.Logger.WithFields(logrus.Fields{
		"Function":      "Publish",
		"Topic":         kp.writer.Topic,
		"EventType":     event.Type,
		"AppointmentID": event.AppointmentID,
	}).Info("Event delivered")
	return nil
}

func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// EnsureTopicExists creates topic through the cluster controller when it is missing.
func EnsureTopicExists(broker, topic string) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("dial kafka %s: %w", broker, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find kafka controller: %w", err)
	}
	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	return ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
}
