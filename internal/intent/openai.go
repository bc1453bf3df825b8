package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const conversationPrompt = `You label chat replies in an interview scheduling conversation.
Answer with one JSON object: {"intent": string, "confidence": number between 0 and 1}.
Allowed intents:
- "confirm": the sender accepts the proposed time or confirms the interview.
- "reject": the sender declines the proposed time without asking for another.
- "request_reschedule": the sender asks for a different time.
- "unclear": anything else, including questions and greetings.
Use the context to interpret short answers such as "yes" or "can't make it".`

const feedbackPrompt = `You extract a hiring recommendation from an interviewer's feedback.
Answer with one JSON object: {"recommendation": string, "summary": string, "confidence": number between 0 and 1}.
"recommendation" is one of "selected", "rejected", "hold" or "unclear" when the text does not say.
"summary" is two neutral sentences at most.`

// ChatClassifier asks an OpenAI compatible chat completion endpoint.
type ChatClassifier struct {
	client      openai.Client
	model       string
	temperature float64
}

// ChatConfig configures a ChatClassifier. BaseURL may point at any
// OpenAI compatible provider.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewChatClassifier builds a classifier from cfg.
func NewChatClassifier(cfg ChatConfig) *ChatClassifier {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &ChatClassifier{client: openai.NewClient(opts...), model: cfg.Model, temperature: 0.1}
}

type chatAnswer struct {
	Intent         string  `json:"intent"`
	Recommendation string  `json:"recommendation"`
	Summary        string  `json:"summary"`
	Confidence     float64 `json:"confidence"`
}

// Classify implements Classifier.
func (c *ChatClassifier) Classify(ctx context.Context, text string, hints Hints) (Classification, error) {
	system := conversationPrompt
	temperature := c.temperature
	if hints.Purpose == PurposeFeedback {
		system = feedbackPrompt
		temperature = 0
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(userPrompt(text, hints)),
		},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Classification{}, ErrNoClassification
	}

	answer, err := decodeAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return Classification{}, err
	}
	if hints.Purpose == PurposeFeedback {
		return Classification{Label: "feedback", Outcome: answer.Recommendation, Summary: answer.Summary, Confidence: answer.Confidence}, nil
	}
	return Classification{Label: answer.Intent, Confidence: answer.Confidence}, nil
}

func userPrompt(text string, hints Hints) string {
	var b strings.Builder
	if hints.Party != "" {
		fmt.Fprintf(&b, "Sender: %s\n", hints.Party)
	}
	if hints.State != "" {
		fmt.Fprintf(&b, "Interview state: %s\n", hints.State)
	}
	if hints.SlotStart != nil {
		fmt.Fprintf(&b, "Proposed time: %s\n", hints.SlotStart.UTC().Format(time.RFC1123))
	}
	fmt.Fprintf(&b, "Message:\n---\n%s\n---", text)
	return b.String()
}

// decodeAnswer tolerates prose around the JSON object.
func decodeAnswer(content string) (chatAnswer, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return chatAnswer{}, fmt.Errorf("%w: no JSON object in %q", ErrNoClassification, content)
	}
	var answer chatAnswer
	if err := json.Unmarshal([]byte(content[start:end+1]), &answer); err != nil {
		return chatAnswer{}, fmt.Errorf("%w: %v", ErrNoClassification, err)
	}
	if answer.Confidence == 0 && (answer.Intent != "" || answer.Recommendation != "") {
		answer.Confidence = 1
	}
	return answer, nil
}
