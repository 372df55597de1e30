package domain

// ─── Domain Events ──────────────────────────────────────────────────────────
// Emitted after the owning transaction commits; consumed by the
// notification collaborator (out of scope) via the live event feed. The
// dispatcher may still hold its account and streak locks while publishing,
// which is why Publisher implementations must never block.

// EventType names an emitted domain event.
type EventType string

const (
	EventRewardCredited  EventType = "reward.credited"
	EventStreakMilestone EventType = "streak.milestone"
	EventProofVerdict    EventType = "proof.verdict"
	EventLevelUp         EventType = "level.up"
)

// Event is one emitted domain event.
type Event struct {
	Type EventType `json:"type"`

	// reward.credited
	AccountID string     `json:"account,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	Reason    ReasonCode `json:"reason,omitempty"`

	// streak.milestone
	ParticipantID string `json:"participant,omitempty"`
	CommitmentID  string `json:"commitment,omitempty"`
	Threshold     int    `json:"threshold,omitempty"`

	// proof.verdict
	ContributionID string             `json:"contribution_id,omitempty"`
	Verdict        ContributionStatus `json:"verdict,omitempty"`

	// level.up
	Level int `json:"level,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

// Publisher delivers events to subscribers. Implementations must not block:
// slow consumers get dropped messages, never back-pressure into the core.
type Publisher interface {
	Publish(Event)
}

// NopPublisher discards events. Useful in tests and batch tools.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Event) {}
