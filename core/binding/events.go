package binding

import "context"

// SurveyCreatedEvent is emitted once a survey has been inserted remotely and
// its access links resolved.
type SurveyCreatedEvent struct {
	OptionID           int
	BindingID          int
	SurveyID           int
	OptionTitle        string
	SurveyURL          string
	QRURL              string
	Organizers         []int
	NotifyParticipants bool
}

// EventSink receives sync lifecycle events. Implementations must not block
// the sync flow on delivery failures.
type EventSink interface {
	SurveyCreated(ctx context.Context, evt SurveyCreatedEvent)
}

type nopSink struct{}

func (nopSink) SurveyCreated(context.Context, SurveyCreatedEvent) {}
