package gormstore

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/envelope"
)

// OutboxRow is the durable staging record for one queued produce
// (spec.md §3 OutboxRow). SequenceNumber is both the row's identity and
// its polling order: GORM's autoIncrement primary key already guarantees
// monotonic insertion order under a single sequence, so the source's
// separate Id/SequenceNumber fields collapse into one column here
// (a deployment choice, recorded in DESIGN.md).
type OutboxRow struct {
	SequenceNumber int64 `gorm:"primaryKey;autoIncrement"`

	TypeID   string `gorm:"column:type_id;index;not null"`
	Topic    string `gorm:"column:topic;not null"`
	Key      string `gorm:"column:key"`
	HasKey   bool   `gorm:"column:has_key"`
	Payload  []byte `gorm:"column:payload;not null"`
	Headers  []byte `gorm:"column:headers"` // JSON-encoded map[string]string

	IsSuccess   bool       `gorm:"column:is_success;index;not null;default:false"`
	Retries     int        `gorm:"column:retries;not null;default:0"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
}

func (OutboxRow) TableName() string { return "txkafka_outbox" }

// HeadersSnapshot decodes the stored Headers column.
func (r *OutboxRow) HeadersSnapshot() (map[string]string, error) {
	if len(r.Headers) == 0 {
		return map[string]string{}, nil
	}
	var snapshot map[string]string
	if err := json.Unmarshal(r.Headers, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// NewOutboxRow builds a row from a fully-assembled envelope (after
// Serialize and trace-inject have both run).
func NewOutboxRow(topic string, env *envelope.Envelope) (*OutboxRow, error) {
	snapshot := env.Headers.Snapshot()
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return &OutboxRow{
		TypeID:    env.TypeID,
		Topic:     topic,
		Key:       env.Key,
		HasKey:    env.HasKey,
		Payload:   env.Payload,
		Headers:   encoded,
		CreatedAt: time.Now(),
	}, nil
}

// ToEnvelope rehydrates the persisted row into an envelope suitable for
// the outbox poll engine's raw re-dispatch (no Message, since the
// original typed object was never persisted — only its wire form).
func (r *OutboxRow) ToEnvelope() (*envelope.Envelope, error) {
	snapshot, err := r.HeadersSnapshot()
	if err != nil {
		return nil, err
	}
	env := envelope.New(nil, r.TypeID)
	env.Headers = envelope.FromSnapshot(snapshot)
	env.Payload = r.Payload
	env.Key = r.Key
	env.HasKey = r.HasKey
	env.WeakTarget = &envelope.OutboxRef{SequenceNumber: r.SequenceNumber, Retries: r.Retries}
	return env, nil
}

// InboxRow is the dedup marker for one consumed business event
// (spec.md §3 InboxRow, §4.10).
type InboxRow struct {
	Fingerprint string `gorm:"column:fingerprint;primaryKey"`

	TypeID     string     `gorm:"column:type_id;index;not null"`
	ReceivedAt time.Time  `gorm:"column:received_at;not null"`
	ExpiredAt  *time.Time `gorm:"column:expired_at;index"`
}

func (InboxRow) TableName() string { return "txkafka_inbox" }

// AutoMigrate creates/updates the outbox and inbox tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxRow{}, &InboxRow{})
}
