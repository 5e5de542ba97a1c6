package enrollment

import "fmt"

type event string

const (
	eventResubmit        event = "payment resubmission"
	eventVerify          event = "payment verification"
	eventReject          event = "payment rejection"
	eventProgress        event = "progress update"
	eventComplete        event = "completion"
	eventCertificateSent event = "certificate sending"
)

type transition struct {
	From  Status
	Event event
	To    Status
}

// transitions is the complete enrollment lifecycle. Creation is not a transition:
// a new enrollment starts pending or active depending on whether payment needs verification.
var transitions = []transition{
	{From: StatusPending, Event: eventResubmit, To: StatusPending},
	{From: StatusPending, Event: eventVerify, To: StatusActive},
	{From: StatusPending, Event: eventReject, To: StatusCancelled},

	{From: StatusActive, Event: eventProgress, To: StatusActive},
	{From: StatusActive, Event: eventComplete, To: StatusCompleted},

	{From: StatusCompleted, Event: eventProgress, To: StatusCompleted},
	{From: StatusCompleted, Event: eventCertificateSent, To: StatusCompleted},
}

// next returns the status reached from `from` on `ev`.
func next(from Status, ev event) (Status, error) {
	for _, t := range transitions {
		if t.From == from && t.Event == ev {
			return t.To, nil
		}
	}
	return "", fmt.Errorf("%s is not allowed on a %s enrollment", ev, from)
}

func initialStatus(verificationRequired bool) Status {
	if verificationRequired {
		return StatusPending
	}
	return StatusActive
}
