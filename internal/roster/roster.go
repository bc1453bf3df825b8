// Package roster reads the seed file that lists interviewers, their weekly
// availability and the candidate pool.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/persistence"
)

// File is the seed document.
type File struct {
	Interviewers []Interviewer `yaml:"interviewers" json:"interviewers"`
	Candidates   []Candidate   `yaml:"candidates" json:"candidates"`
}

// Interviewer is one interviewer entry.
type Interviewer struct {
	Name         string   `yaml:"name" json:"name"`
	Email        string   `yaml:"email" json:"email"`
	Phone        string   `yaml:"phone,omitempty" json:"phone,omitempty"`
	TimeZone     string   `yaml:"time_zone,omitempty" json:"time_zone,omitempty"`
	Active       *bool    `yaml:"active,omitempty" json:"active,omitempty"`
	Availability []Window `yaml:"availability" json:"availability"`
}

// Candidate is one candidate entry.
type Candidate struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email,omitempty" json:"email,omitempty"`
	Phone string `yaml:"phone" json:"phone"`
	Score int    `yaml:"score" json:"score"`
	Rank  int    `yaml:"rank" json:"rank"`
}

// Window is a weekly availability range written as a day name and HH:MM
// bounds in the interviewer's time zone, for example
// {day: monday, start: "10:00", end: "17:00"}.
type Window struct {
	Day   string `yaml:"day" json:"day"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Load reads and parses a seed file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("load roster %q: %w", path, err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return File{}, fmt.Errorf("parse roster %q: %w", path, err)
	}
	return f, nil
}

// Parse decodes a seed document. Unknown keys are rejected so typos in the
// file do not silently drop data.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, err
	}
	return f, nil
}

// Inputs converts the document into service inputs. Window errors are
// reported with the offending interviewer and index.
func (f File) Inputs() ([]application.CandidateInput, []application.InterviewerInput, error) {
	candidates := make([]application.CandidateInput, 0, len(f.Candidates))
	for _, c := range f.Candidates {
		candidates = append(candidates, application.CandidateInput{
			Name:  c.Name,
			Email: c.Email,
			Phone: c.Phone,
			Score: c.Score,
			Rank:  c.Rank,
		})
	}

	interviewers := make([]application.InterviewerInput, 0, len(f.Interviewers))
	for _, iv := range f.Interviewers {
		windows, err := Availability(iv.Availability)
		if err != nil {
			return nil, nil, fmt.Errorf("interviewer %q: %w", iv.Email, err)
		}
		interviewers = append(interviewers, application.InterviewerInput{
			Name:         iv.Name,
			Email:        iv.Email,
			Phone:        iv.Phone,
			TimeZone:     iv.TimeZone,
			Active:       iv.Active,
			Availability: windows,
		})
	}
	return candidates, interviewers, nil
}

// Availability converts written windows into stored ones.
func Availability(windows []Window) ([]persistence.AvailabilityWindow, error) {
	out := make([]persistence.AvailabilityWindow, 0, len(windows))
	for i, w := range windows {
		aw, err := w.Availability()
		if err != nil {
			return nil, fmt.Errorf("availability[%d]: %w", i, err)
		}
		out = append(out, aw)
	}
	return out, nil
}

// Availability parses one window. Range checks beyond the clock format are
// left to the roster service.
func (w Window) Availability() (persistence.AvailabilityWindow, error) {
	day, err := ParseWeekday(w.Day)
	if err != nil {
		return persistence.AvailabilityWindow{}, err
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return persistence.AvailabilityWindow{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return persistence.AvailabilityWindow{}, fmt.Errorf("end: %w", err)
	}
	return persistence.AvailabilityWindow{Weekday: day, StartMinute: start, EndMinute: end}, nil
}

// FromAvailability renders stored windows in the written form.
func FromAvailability(windows []persistence.AvailabilityWindow) []Window {
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		out = append(out, Window{
			Day:   strings.ToLower(w.Weekday.String()),
			Start: formatClock(w.StartMinute),
			End:   formatClock(w.EndMinute),
		})
	}
	return out
}

// ParseWeekday accepts full or three letter English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if len(name) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			full := strings.ToLower(d.String())
			if name == full || name == full[:3] {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q is out of range", s)
	}
	return h*60 + m, nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
