package intent

import (
	"context"
	"regexp"
	"strings"
)

// KeywordClassifier is a deterministic rule set used when no remote model is
// configured or the remote model fails.
type KeywordClassifier struct{}

type rule struct {
	label   string
	pattern *regexp.Regexp
}

// Order matters: reschedule phrases often contain a "no", and negative
// feedback often contains "select".
var conversationRules = []rule{
	{"request_reschedule", regexp.MustCompile(`\b(reschedul\w*|another (time|slot|day)|different (time|slot|day)|other (time|slot)|postpone|move it|later slot)\b`)},
	{"reject", regexp.MustCompile(`\b(no|nope|not available|unavailable|can'?t|cannot|decline|reject|busy|won'?t work|doesn'?t work)\b`)},
	{"confirm", regexp.MustCompile(`\b(yes|yeah|yep|sure|ok|okay|confirm\w*|works|fine|accept\w*|great|perfect|available|done)\b`)},
}

var feedbackRules = []rule{
	{"rejected", regexp.MustCompile(`\b(not (a )?(good )?fit|reject\w*|no hire|not recommend\w*|do not proceed|don'?t proceed|weak)\b`)},
	{"hold", regexp.MustCompile(`\b(on hold|hold|maybe|borderline|second round|unsure)\b`)},
	{"selected", regexp.MustCompile(`\b(select\w*|hire|strong|recommend\w*|proceed|move forward|excellent|pass(ed)?)\b`)},
}

// Classify implements Classifier.
func (KeywordClassifier) Classify(ctx context.Context, text string, hints Hints) (Classification, error) {
	lower := strings.ToLower(text)
	if hints.Purpose == PurposeFeedback {
		for _, r := range feedbackRules {
			if r.pattern.MatchString(lower) {
				return Classification{Label: "feedback", Outcome: r.label, Summary: summarize(text), Confidence: 0.7}, nil
			}
		}
		return Classification{Label: "feedback", Outcome: "unclear", Summary: summarize(text), Confidence: 0.7}, nil
	}
	for _, r := range conversationRules {
		if r.pattern.MatchString(lower) {
			return Classification{Label: r.label, Confidence: 0.75}, nil
		}
	}
	return Classification{Label: "unclear", Confidence: 0}, nil
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const limit = 280
	if len(text) <= limit {
		return text
	}
	cut := strings.LastIndex(text[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return text[:cut] + "..."
}
