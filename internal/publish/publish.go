// Package publish announces produced clips on a Kafka topic.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "facecrop.clips"

// ClipEvent is the JSON body of every message.
type ClipEvent struct {
	VideoID    string    `json:"video_id"`
	PersonName string    `json:"person_name"`
	Height     int       `json:"height"`
	Width      int       `json:"width"`
	StartFrame int       `json:"start_frame"`
	EndFrame   int       `json:"end_frame"`
	Left       int       `json:"left"`
	Top        int       `json:"top"`
	Right      int       `json:"right"`
	Bottom     int       `json:"bottom"`
	Gender     string    `json:"gender"`
	Country    string    `json:"country"`
	Racial     string    `json:"racial"`
	Age        string    `json:"age"`
	ClipPath   string    `json:"clip_path"`
	Timestamp  time.Time `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per clip, keyed by video id.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// New creates a synchronous writer for the comma-separated broker list.
func New(brokers, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// NewEvent builds the event for rec.
func NewEvent(rec types.ClipRecord, clipPath string, at time.Time) ClipEvent {
	return ClipEvent{
		VideoID:    rec.VideoID,
		PersonName: rec.PersonName,
		Height:     rec.Height,
		Width:      rec.Width,
		StartFrame: rec.StartFrame,
		EndFrame:   rec.EndFrame,
		Left:       rec.Box.Left,
		Top:        rec.Box.Top,
		Right:      rec.Box.Right,
		Bottom:     rec.Box.Bottom,
		Gender:     rec.Gender,
		Country:    rec.Country,
		Racial:     rec.Racial,
		Age:        rec.Age,
		ClipPath:   clipPath,
		Timestamp:  at,
	}
}

// Message encodes ev as a Kafka message.
func Message(ev ClipEvent) (kafka.Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal clip event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.VideoID),
		Value: body,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte("facecrop")},
		},
	}, nil
}

// Record implements the pipeline sink contract.
func (p *Publisher) Record(ctx context.Context, rec types.ClipRecord, clipPath string) error {
	msg, err := Message(NewEvent(rec, clipPath, p.now()))
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	return nil
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Close() error {
	return p.writer.Close()
}
