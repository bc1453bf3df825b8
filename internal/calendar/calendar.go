// Package calendar provisions meeting links for booked interviews.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no meeting base URL is set.
var ErrNotConfigured = errors.New("calendar: meeting base url not configured")

// Request describes the meeting to provision.
type Request struct {
	InterviewID      string
	InterviewerEmail string
	CandidateEmail   string
	Start            time.Time
	End              time.Time
}

// Provisioner creates a meeting and returns its join link.
type Provisioner interface {
	Provision(ctx context.Context, req Request) (string, error)
}

var meetingNamespace = uuid.MustParse("6f1c1f3e-4c4b-4d38-9a53-3b7f6f0f9a21")

// LinkProvisioner derives a stable meeting room URL from the interview and
// start time, so provisioning the same booking twice yields the same link.
type LinkProvisioner struct {
	base *url.URL
}

// NewLinkProvisioner parses baseURL.
func NewLinkProvisioner(baseURL string) (*LinkProvisioner, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse meeting base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("meeting base url %q must be absolute", baseURL)
	}
	return &LinkProvisioner{base: u}, nil
}

// Provision implements Provisioner.
func (p *LinkProvisioner) Provision(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.InterviewID == "" || req.Start.IsZero() {
		return "", errors.New("calendar: interview id and start are required")
	}
	room := uuid.NewSHA1(meetingNamespace, []byte(req.InterviewID+"|"+req.Start.UTC().Format(time.RFC3339)))
	return p.base.JoinPath(room.String()).String(), nil
}
