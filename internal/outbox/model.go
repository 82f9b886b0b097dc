// Package outbox relays events written transactionally alongside domain rows
// to Kafka.
package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// TypeOrderPlaced is emitted once per order appended to the ledger.
const TypeOrderPlaced = "order.placed"

type Event struct {
	ID          int64
	AggregateID string
	Type        string
	Payload     []byte
	Status      Status
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
}
