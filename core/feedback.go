package convai

import "github.com/koscakluka/convai-core/core/events"

// feedbackTracker remembers which agent response feedback may refer to.
// Feedback is sent at most once per agent event id and never for an id at
// or below one already rated. It is only touched from the session loop.
type feedbackTracker struct {
	// latestEventID is the highest id seen on any inbound event.
	latestEventID       int
	lastAgentEventID    int
	lastFeedbackEventID int
	eligible            bool
}

// observeEvent records an inbound event id. Event ids share one counter per
// conversation.
func (f *feedbackTracker) observeEvent(eventID int) {
	if eventID > f.latestEventID {
		f.latestEventID = eventID
	}
}

// observeAgentResponse makes feedback eligible. A response without its own
// id is rated under the latest inbound event id.
func (f *feedbackTracker) observeAgentResponse(eventID int) {
	f.observeEvent(eventID)
	f.eligible = true
	if eventID <= 0 {
		eventID = f.latestEventID
	}
	if eventID > f.lastAgentEventID {
		f.lastAgentEventID = eventID
	}
}

// observeAudio takes the id of agent audio, which belongs to the response
// being spoken.
func (f *feedbackTracker) observeAudio(eventID int) {
	f.observeEvent(eventID)
	if eventID > f.lastAgentEventID {
		f.lastAgentEventID = eventID
	}
}

func (f *feedbackTracker) interrupted() {
	f.eligible = false
}

func (f *feedbackTracker) canSend() bool {
	return f.eligible
}

// next returns the feedback event to send and marks the response as rated.
// When nothing is sent the reason is returned for logging.
func (f *feedbackTracker) next(positive bool) (events.Feedback, string, bool) {
	switch {
	case f.lastAgentEventID == 0:
		return events.Feedback{}, "no agent event id recorded", false
	case f.lastAgentEventID <= f.lastFeedbackEventID:
		return events.Feedback{}, "agent response already rated", false
	}
	f.lastFeedbackEventID = f.lastAgentEventID
	f.eligible = false
	return events.NewFeedback(positive, f.lastAgentEventID), "", true
}
