package database

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
)

const OutcomeCollectionName = "outcomes"

// OutcomeDocument is the stored form of event.Outcome.
type OutcomeDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	Time        time.Time          `bson:"time"`
	Kind        string             `bson:"kind"`
	Success     bool               `bson:"success"`
	SessionID   string             `bson:"session_id,omitempty"`
	ClientID    string             `bson:"client_id,omitempty"`
	Gateway     string             `bson:"gateway,omitempty"`
	Topic       string             `bson:"topic,omitempty"`
	TopicID     int32              `bson:"topic_id,omitempty"`
	MsgID       int32              `bson:"msg_id,omitempty"`
	QoS         int32              `bson:"qos"`
	PayloadSize int64              `bson:"payload_size,omitempty"`
	LatencyMS   float64            `bson:"latency_ms"`
	ErrorKind   string             `bson:"error_kind,omitempty"`
	Error       string             `bson:"error,omitempty"`
}

func NewOutcomeDocument(o event.Outcome) *OutcomeDocument {
	doc := &OutcomeDocument{
		ID:          primitive.NewObjectID(),
		Time:        o.Time.UTC(),
		Kind:        string(o.Kind),
		Success:     o.Success(),
		SessionID:   o.SessionID,
		ClientID:    o.ClientID,
		Gateway:     o.Gateway,
		Topic:       o.Topic,
		TopicID:     int32(o.TopicID),
		MsgID:       int32(o.MsgID),
		QoS:         int32(o.QoS),
		PayloadSize: int64(o.PayloadSize),
		LatencyMS:   float64(o.Latency) / float64(time.Millisecond),
		ErrorKind:   o.ErrorKind,
	}
	if o.Err != nil {
		doc.Error = o.Err.Error()
	}
	return doc
}
