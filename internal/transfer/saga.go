package transfer

import (
	"slices"

	"github.com/cradoe/fundsrail/internal/models"
	"golang.org/x/exp/maps"
)

// Event is something that moves a persisted transfer between states.
type Event string

const (
	EventSubmit        Event = "submit"
	EventMonitorHold   Event = "monitor_hold"
	EventMonitorReject Event = "monitor_reject"
	EventFundingSettle Event = "funding_settle"
	EventFundingReject Event = "funding_reject"

	// webhook re-entry
	EventContinue Event = "continue"
	EventFail     Event = "fail"
	EventHold     Event = "hold"
)

type rule struct {
	from []string
	to   string
}

var rules = map[Event]rule{
	EventSubmit:        {from: []string{models.StatusPending}, to: models.StatusProcessing},
	EventMonitorHold:   {from: []string{models.StatusPending}, to: models.StatusReview},
	EventMonitorReject: {from: []string{models.StatusPending}, to: models.StatusFailed},
	EventFundingSettle: {from: []string{models.StatusProcessing}, to: models.StatusCompleted},
	EventFundingReject: {from: []string{models.StatusProcessing}, to: models.StatusFailed},
	EventContinue:      {from: []string{models.StatusReview}, to: models.StatusProcessing},
	EventFail:          {from: []string{models.StatusReview, models.StatusFailed}, to: models.StatusFailed},
	EventHold:          {from: []string{models.StatusReview, models.StatusFailed}, to: models.StatusReview},
}

// immutable states cannot be re-entered from a webhook.
var immutable = map[string]struct{}{
	models.StatusPending:    {},
	models.StatusProcessing: {},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

// Decision is the outcome of applying an event to the persisted status.
type Decision struct {
	Allowed bool
	From    []string
	To      string
	// Immutable is set when the status can never be changed by this event's source.
	Immutable bool
}

// Decide is a pure function of the persisted status and the event.
func Decide(status string, event Event) Decision {
	r, ok := rules[event]
	if !ok {
		return Decision{}
	}

	d := Decision{From: r.from, To: r.to}

	if isWebhookEvent(event) {
		if _, frozen := immutable[status]; frozen {
			d.Immutable = true
			return d
		}
	}

	d.Allowed = slices.Contains(r.from, status)
	return d
}

func isWebhookEvent(event Event) bool {
	return event == EventContinue || event == EventFail || event == EventHold
}

// Events lists every event the table knows, sorted.
func Events() []Event {
	keys := maps.Keys(rules)
	slices.Sort(keys)
	return keys
}
