package negotiation

// Effect is a side effect the caller must apply together with a transition.
type Effect uint8

const (
	// EffectReleaseSlot returns the interview's current slot to open.
	EffectReleaseSlot Effect = 1 << iota
	// EffectProposeSlot asks the ledger for a new slot. The caller resolves
	// the outcome through EventProposed or EventNoAvailability from Shortlisted.
	EffectProposeSlot
	// EffectExtendHold keeps the slot held while the interviewer decides.
	EffectExtendHold
	// EffectBookSlot books the held slot.
	EffectBookSlot
	// EffectProvisionMeeting requires a meeting link.
	EffectProvisionMeeting
	// EffectRecordFeedback stores the parsed feedback.
	EffectRecordFeedback
)

// Transition is one accepted (state, event) pair.
type Transition struct {
	From    State
	To      State
	Event   Event
	Effects Effect
}

// Has reports whether the transition carries effect e.
func (t Transition) Has(e Effect) bool { return t.Effects&e != 0 }

var table = map[State]map[Event]Transition{
	Shortlisted: {
		EventProposed:       {To: SlotProposed},
		EventNoAvailability: {To: Stalled},
	},
	Stalled: {
		EventProposed:       {To: SlotProposed},
		EventNoAvailability: {To: Stalled},
	},
	SlotProposed: {
		EventCandidateConfirmed: {To: AwaitingInterviewer, Effects: EffectExtendHold},
		EventCandidateRejected:  {To: Shortlisted, Effects: EffectReleaseSlot | EffectProposeSlot},
		EventHoldExpired:        {To: Shortlisted, Effects: EffectReleaseSlot},
		EventResponseTimeout:    {To: Shortlisted, Effects: EffectReleaseSlot},
	},
	AwaitingInterviewer: {
		EventInterviewerConfirmed: {To: Scheduled, Effects: EffectBookSlot | EffectProvisionMeeting},
		EventInterviewerRejected:  {To: SlotProposed, Effects: EffectReleaseSlot | EffectProposeSlot},
		EventResponseTimeout:      {To: SlotProposed, Effects: EffectReleaseSlot | EffectProposeSlot},
		EventHoldExpired:          {To: SlotProposed, Effects: EffectReleaseSlot | EffectProposeSlot},
	},
	Scheduled: {
		EventInterviewElapsed: {To: AwaitingFeedback},
	},
	AwaitingFeedback: {
		EventFeedbackReceived: {To: Completed, Effects: EffectRecordFeedback},
		EventFeedbackTimeout:  {To: CompletedUnresolved},
	},
}

// Next returns the transition for event in state from. The result depends on
// nothing but the pair.
func Next(from State, event Event) (Transition, error) {
	if !from.Valid() {
		return Transition{}, ErrUnknownState
	}
	if !from.Terminal() {
		switch event {
		case EventRetriesExceeded:
			return Transition{From: from, To: Expired, Event: event, Effects: EffectReleaseSlot}, nil
		case EventCancelled:
			return Transition{From: from, To: Cancelled, Event: event, Effects: EffectReleaseSlot}, nil
		}
	}
	t, ok := table[from][event]
	if !ok {
		return Transition{}, &TransitionError{From: from, Event: event}
	}
	t.From = from
	t.Event = event
	return t, nil
}

// Absorbs reports whether event was already applied to an interview now in
// state, so a redelivery must succeed without change.
func Absorbs(state State, event Event) bool {
	switch event {
	case EventCandidateConfirmed:
		return state == AwaitingInterviewer || reachedSchedule(state)
	case EventInterviewerConfirmed:
		return reachedSchedule(state)
	case EventInterviewElapsed:
		return reachedSchedule(state) && state != Scheduled
	case EventFeedbackReceived:
		return state == Completed || state == CompletedUnresolved
	case EventCancelled:
		return state == Cancelled
	}
	return false
}

func reachedSchedule(s State) bool {
	switch s {
	case Scheduled, AwaitingFeedback, Completed, CompletedUnresolved:
		return true
	}
	return false
}
