// Package intent turns free text into negotiation intents.
//
// A Classifier produces a loosely typed Classification; the Resolver maps it
// onto the closed negotiation.Intent variant and never fails: anything it
// cannot map confidently becomes IntentUnrecognized.
package intent

import (
	"context"
	"errors"
	"time"

	"github.com/example/interview-scheduler/internal/negotiation"
)

// Purpose selects the classification prompt.
type Purpose string

const (
	PurposeConversation Purpose = "conversation"
	PurposeFeedback     Purpose = "feedback"
)

// Hints give the classifier the conversational context.
type Hints struct {
	Purpose   Purpose
	Party     negotiation.Party
	State     negotiation.State
	SlotStart *time.Time
}

// Classification is the raw classifier answer.
type Classification struct {
	Label      string
	Confidence float64
	// Outcome and Summary are filled for feedback classification.
	Outcome string
	Summary string
}

// Classifier labels text.
type Classifier interface {
	Classify(ctx context.Context, text string, hints Hints) (Classification, error)
}

// ErrNoClassification is returned by classifiers that cannot answer.
var ErrNoClassification = errors.New("intent: no classification")

// Chain tries each classifier in order and returns the first answer that is
// not an error. It lets a remote model degrade to local rules.
type Chain []Classifier

// Classify implements Classifier.
func (c Chain) Classify(ctx context.Context, text string, hints Hints) (Classification, error) {
	var errs []error
	for _, classifier := range c {
		if classifier == nil {
			continue
		}
		result, err := classifier.Classify(ctx, text, hints)
		if err == nil {
			return result, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Classification{}, ErrNoClassification
	}
	return Classification{}, errors.Join(errs...)
}
