// Package kafka anchors proof digests on a Kafka topic. A record acknowledged
// by every in-sync replica is treated as confirmed.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"vitalproof/internal/anchoring"
)

const ledgerID = "kafka"

// Producer is the subset of *kgo.Client the ledger needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Ledger struct {
	producer Producer
	topic    string
	clock    func() time.Time
}

func New(producer Producer, topic string) *Ledger {
	return &Ledger{producer: producer, topic: topic, clock: time.Now}
}

func (l *Ledger) ID() string { return ledgerID }

type record struct {
	ProofID     string    `json:"proof_id"`
	Digest      string    `json:"digest"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submit appends the entry keyed by proof id and returns topic/partition/offset.
func (l *Ledger) Submit(ctx context.Context, entry anchoring.Entry) (anchoring.Submission, error) {
	now := l.clock().UTC()
	value, err := json.Marshal(record{ProofID: entry.ProofID, Digest: entry.Digest, SubmittedAt: now})
	if err != nil {
		return anchoring.Submission{}, fmt.Errorf("encode anchor record: %w", err)
	}
	rec, err := l.producer.ProduceSync(ctx, &kgo.Record{
		Topic:     l.topic,
		Key:       []byte(entry.ProofID),
		Value:     value,
		Timestamp: now,
		Headers:   []kgo.RecordHeader{{Key: "content-type", Value: []byte("application/json")}},
	}).First()
	if err != nil {
		var ke *kerr.Error
		if errors.As(err, &ke) && !kerr.IsRetriable(err) {
			return anchoring.Submission{}, fmt.Errorf("produce anchor record: %w: %w", anchoring.ErrRejected, err)
		}
		return anchoring.Submission{}, fmt.Errorf("produce anchor record: %w", err)
	}
	return anchoring.Submission{
		Ref:         FormatRef(rec.Topic, rec.Partition, rec.Offset),
		Confirmed:   true,
		ConfirmedAt: now,
	}, nil
}

// Confirmation reports acknowledged records as confirmed. Submit only
// returns a ref after acknowledgement, so any well-formed ref qualifies.
func (l *Ledger) Confirmation(_ context.Context, ref string) (anchoring.Confirmation, error) {
	if _, _, _, err := ParseRef(ref); err != nil {
		return anchoring.Confirmation{}, err
	}
	return anchoring.Confirmation{Confirmed: true, At: l.clock().UTC()}, nil
}

// FormatRef renders topic/partition/offset.
func FormatRef(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s/%d/%d", topic, partition, offset)
}

// ParseRef is the inverse of FormatRef. Topics may not contain '/'.
func ParseRef(ref string) (topic string, partition int32, offset int64, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("malformed kafka ledger ref %q: %w", ref, anchoring.ErrRejected)
	}
	p, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed kafka ledger ref %q: %w", ref, anchoring.ErrRejected)
	}
	o, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed kafka ledger ref %q: %w", ref, anchoring.ErrRejected)
	}
	return parts[0], int32(p), o, nil
}
