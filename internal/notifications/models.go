package notifications

import (
	"time"

	"github.com/google/uuid"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

// EventType names a ledger-relevant state change
type EventType string

const (
	EventProjectSubmitted EventType = "project.submitted"
	EventProjectDecided   EventType = "project.decided"
	EventCreditsMinted    EventType = "credits.minted"
)

// Event is emitted after a state change has been committed
type Event struct {
	ID          uuid.UUID                 `json:"id"`
	Type        EventType                 `json:"type"`
	ProjectID   uuid.UUID                 `json:"project_id"`
	OwnerID     string                    `json:"owner_id"`
	Project     *projects.Project         `json:"project,omitempty"`
	Transaction *ledger.CreditTransaction `json:"transaction,omitempty"`
	OccurredAt  time.Time                 `json:"occurred_at"`
}

// NewProjectEvent builds a submitted or decided event from a project snapshot
func NewProjectEvent(eventType EventType, project *projects.Project) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		ProjectID:  project.ID,
		OwnerID:    project.OwnerID,
		Project:    project.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}

// NewMintedEvent builds a credits.minted event
func NewMintedEvent(tx *ledger.CreditTransaction) Event {
	c := *tx
	return Event{
		ID:          uuid.New(),
		Type:        EventCreditsMinted,
		ProjectID:   tx.ProjectID,
		OwnerID:     tx.OwnerID,
		Transaction: &c,
		OccurredAt:  time.Now().UTC(),
	}
}
