package messaging

import (
	"fmt"
	"strings"
	"time"
)

const slotLayout = "Monday 2 January 2006, 15:04 MST"

// FormatSlot renders a slot start for humans in loc (UTC when nil).
func FormatSlot(start time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return start.In(loc).Format(slotLayout)
}

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Hello"
	}
	return "Hello " + name
}

// Proposal asks a candidate to accept a slot.
func Proposal(candidate string, start time.Time) string {
	return fmt.Sprintf("%s, you have been shortlisted for an interview. Does %s work for you? Reply YES to confirm or ask for another time.",
		greeting(candidate), FormatSlot(start, nil))
}

// CandidateAcknowledged tells a candidate their confirmation was received.
func CandidateAcknowledged(candidate string, start time.Time) string {
	return fmt.Sprintf("Thanks %s. We are confirming %s with the interviewer and will message you shortly.",
		strings.TrimSpace(candidate), FormatSlot(start, nil))
}

// InterviewerRequest asks an interviewer to confirm a candidate's slot.
func InterviewerRequest(interviewer, candidate string, start time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s, %s has accepted an interview on %s. Reply YES to confirm or NO if you cannot make it.",
		greeting(interviewer), candidate, FormatSlot(start, loc))
}

// ScheduledCandidate confirms the interview to the candidate.
func ScheduledCandidate(candidate string, start time.Time, link string) string {
	return fmt.Sprintf("%s, your interview is confirmed for %s. Join here: %s",
		greeting(candidate), FormatSlot(start, nil), link)
}

// ScheduledInterviewer confirms the interview to the interviewer.
func ScheduledInterviewer(interviewer, candidate string, start time.Time, loc *time.Location, link string) string {
	return fmt.Sprintf("%s, your interview with %s is booked for %s. Meeting link: %s",
		greeting(interviewer), candidate, FormatSlot(start, loc), link)
}

// NewTimeComing tells a candidate another slot is on its way.
func NewTimeComing(candidate string) string {
	return fmt.Sprintf("%s, no problem. We will send you another time shortly.", greeting(candidate))
}

// NoAvailability tells a candidate no slot is free right now.
func NoAvailability(candidate string) string {
	return fmt.Sprintf("%s, we could not find a free interview slot right now. We will get back to you as soon as one opens up.",
		greeting(candidate))
}

// Clarify asks the sender to rephrase.
func Clarify(name string) string {
	return fmt.Sprintf("%s, sorry, we did not understand that. Please reply YES to confirm, NO to decline, or ask for another time.",
		greeting(name))
}

// NothingPending answers a message that does not belong to an open step.
func NothingPending(name string) string {
	return fmt.Sprintf("%s, there is nothing waiting for your reply at the moment.", greeting(name))
}

// UnknownSender answers a handle that matches no candidate or interviewer.
func UnknownSender(hrContact string) string {
	if hrContact == "" {
		return "Sorry, we could not find an interview linked to this number. Please contact the HR team."
	}
	return fmt.Sprintf("Sorry, we could not find an interview linked to this number. Please contact %s.", hrContact)
}

// CandidateReminder nudges a candidate about a pending proposal.
func CandidateReminder(candidate string, start time.Time, deadline time.Time) string {
	return fmt.Sprintf("%s, a reminder: please confirm the interview on %s before %s or the slot will be released.",
		greeting(candidate), FormatSlot(start, nil), FormatSlot(deadline, nil))
}

// InterviewerReminder nudges an interviewer about a pending confirmation.
func InterviewerReminder(interviewer, candidate string, start time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s, a reminder: %s is waiting for your confirmation of the interview on %s.",
		greeting(interviewer), candidate, FormatSlot(start, loc))
}

// FeedbackRequest asks an interviewer for feedback after the interview.
func FeedbackRequest(interviewer, candidate string, start time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s, please send your feedback for %s (interview on %s) by email with \"Feedback\" in the subject.",
		greeting(interviewer), candidate, FormatSlot(start, loc))
}

// Outcome tells the candidate the hiring decision.
func Outcome(candidate, outcome string) string {
	switch outcome {
	case "selected":
		return fmt.Sprintf("%s, congratulations! You have been selected. The HR team will contact you with next steps.", greeting(candidate))
	case "rejected":
		return fmt.Sprintf("%s, thank you for your time. We will not be moving forward with your application.", greeting(candidate))
	default:
		return fmt.Sprintf("%s, thank you for interviewing with us. We will share an update soon.", greeting(candidate))
	}
}

// Cancelled notifies a participant that the interview was cancelled.
func Cancelled(name string, start *time.Time) string {
	if start == nil {
		return fmt.Sprintf("%s, the interview process has been cancelled.", greeting(name))
	}
	return fmt.Sprintf("%s, the interview on %s has been cancelled.", greeting(name), FormatSlot(*start, nil))
}

// Expired tells the candidate that scheduling could not be completed.
func Expired(candidate string) string {
	return fmt.Sprintf("%s, we were unable to schedule your interview automatically. The HR team will reach out to you directly.", greeting(candidate))
}
