// Package events publishes booking assessments to kafka for downstream
// consumers such as case management and reporting.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"securestay-risk/internal/assess"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the kafka connection.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	MaxAttempts  int
}

// Publisher implements assess.Notifier on top of a kafka writer. Messages are
// keyed by booking reference so all assessments of a booking land on the same
// partition.
type Publisher struct {
	writer messageWriter
	topic  string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, topic: cfg.Topic}, nil
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Notify(ctx context.Context, a *assess.Assessment) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.BookingRef),
		Value: value,
		Time:  a.CreatedAt,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(a.Decision)},
			{Key: "model_version", Value: []byte(a.ModelVersion)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
