package usage

import "time"

// Event represents a single billed model invocation (immutable value type).
// The store assigns ID and Timestamp at insert; both are zero until then.
type Event struct {
	ID              int64
	UserID          string
	InteractionID   string
	Command         string
	Model           string
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	Timestamp       time.Time
	SourceMessageID string // optional reply-message correlation, "" when absent
}

// NewEvent creates an event from validated totals.
func NewEvent(userID, interactionID, command, model string, t Totals, sourceMessageID string) Event {
	return Event{
		UserID:          userID,
		InteractionID:   interactionID,
		Command:         command,
		Model:           model,
		InputTokens:     t.InputTokens,
		OutputTokens:    t.OutputTokens,
		TotalTokens:     t.TotalTokens,
		SourceMessageID: sourceMessageID,
	}
}

// Totals returns the event's token counts as a Totals value.
func (e Event) Totals() Totals {
	return Totals{
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		TotalTokens:  e.TotalTokens,
	}
}
