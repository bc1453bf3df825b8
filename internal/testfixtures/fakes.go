package testfixtures

import (
	"context"
	"strings"
	"sync"

	"github.com/example/interview-scheduler/internal/calendar"
)

// Message is one delivered outbound message.
type Message struct {
	Handle string
	Text   string
}

// RecordingSender captures outbound messages. Handles registered with FailFor
// return the given error instead and are not recorded.
type RecordingSender struct {
	mu       sync.Mutex
	messages []Message
	failing  map[string]error
}

// NewRecordingSender returns an empty recorder.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{failing: make(map[string]error)}
}

// Send implements messaging.Sender.
func (r *RecordingSender) Send(ctx context.Context, handle, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failing[handle]; ok {
		return err
	}
	r.messages = append(r.messages, Message{Handle: handle, Text: text})
	return nil
}

// FailFor makes every send to handle fail with err. A nil err clears it.
func (r *RecordingSender) FailFor(handle string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failing, handle)
		return
	}
	r.failing[handle] = err
}

// Messages returns a copy of everything delivered so far.
func (r *RecordingSender) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// To returns the messages delivered to handle.
func (r *RecordingSender) To(handle string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Handle == handle {
			out = append(out, m)
		}
	}
	return out
}

// Count returns how many messages to handle contain substr.
func (r *RecordingSender) Count(handle, substr string) int {
	n := 0
	for _, m := range r.To(handle) {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

// Reset forgets delivered messages.
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// StubProvisioner returns a fixed link or error.
type StubProvisioner struct {
	mu    sync.Mutex
	Link  string
	Err   error
	calls []calendar.Request
}

// Provision implements calendar.Provisioner.
func (p *StubProvisioner) Provision(ctx context.Context, req calendar.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.Err != nil {
		return "", p.Err
	}
	if p.Link == "" {
		return "https://meet.example.com/" + req.InterviewID, nil
	}
	return p.Link, nil
}

// SetErr changes the error returned by later calls.
func (p *StubProvisioner) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// Calls returns the requests seen so far.
func (p *StubProvisioner) Calls() []calendar.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]calendar.Request(nil), p.calls...)
}
