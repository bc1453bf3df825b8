package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

const candidateColumns = `id, name, email, phone, score, shortlist_rank, status, created_at, updated_at`

func (s *Store) CreateCandidate(ctx context.Context, c persistence.Candidate) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO candidates (`+candidateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Score, c.Rank, c.Status, encodeTime(c.CreatedAt), encodeTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert candidate %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) UpdateCandidate(ctx context.Context, c persistence.Candidate) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE candidates SET name = ?, email = ?, phone = ?, score = ?, shortlist_rank = ?, status = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.Score, c.Rank, c.Status, encodeTime(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("update candidate %s: %w", c.ID, err)
	}
	return requireAffected(res, persistence.ErrNotFound)
}

func (s *Store) GetCandidate(ctx context.Context, id string) (persistence.Candidate, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	return scanCandidate(row)
}

func (s *Store) GetCandidateByPhone(ctx context.Context, phone string) (persistence.Candidate, error) {
	if phone == "" {
		return persistence.Candidate{}, persistence.ErrNotFound
	}
	row := s.queryRow(ctx, s.db, `SELECT `+candidateColumns+` FROM candidates WHERE phone = ?`, phone)
	return scanCandidate(row)
}

func (s *Store) ListCandidates(ctx context.Context, filter persistence.CandidateFilter) ([]persistence.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE score >= ?`
	args := []any{filter.MinScore}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY shortlist_rank ASC, score DESC, id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []persistence.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCandidate(row rowScanner) (persistence.Candidate, error) {
	var (
		c                persistence.Candidate
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Score, &c.Rank, &c.Status, &created, &updated); err != nil {
		return persistence.Candidate{}, mapError(err)
	}
	var d timeDecoder
	c.CreatedAt = d.at(created)
	c.UpdatedAt = d.at(updated)
	return c, d.err
}

const interviewerColumns = `id, name, email, phone, time_zone, active, availability, created_at, updated_at`

type availabilityRecord struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

func encodeAvailability(windows []persistence.AvailabilityWindow) (string, error) {
	records := make([]availabilityRecord, 0, len(windows))
	for _, w := range windows {
		records = append(records, availabilityRecord{Weekday: int(w.Weekday), StartMinute: w.StartMinute, EndMinute: w.EndMinute})
	}
	return encodeJSON(records)
}

func decodeAvailability(value string) ([]persistence.AvailabilityWindow, error) {
	var records []availabilityRecord
	if strings.TrimSpace(value) != "" {
		if err := json.Unmarshal([]byte(value), &records); err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}
	}
	out := make([]persistence.AvailabilityWindow, 0, len(records))
	for _, r := range records {
		out = append(out, persistence.AvailabilityWindow{Weekday: time.Weekday(r.Weekday), StartMinute: r.StartMinute, EndMinute: r.EndMinute})
	}
	return out, nil
}

func (s *Store) CreateInterviewer(ctx context.Context, iv persistence.Interviewer) error {
	availability, err := encodeAvailability(iv.Availability)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db,
		`INSERT INTO interviewers (`+interviewerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.Name, strings.ToLower(iv.Email), iv.Phone, iv.TimeZone, iv.Active, availability, encodeTime(iv.CreatedAt), encodeTime(iv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert interviewer %s: %w", iv.ID, err)
	}
	return nil
}

func (s *Store) UpdateInterviewer(ctx context.Context, iv persistence.Interviewer) error {
	availability, err := encodeAvailability(iv.Availability)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db,
		`UPDATE interviewers SET name = ?, email = ?, phone = ?, time_zone = ?, active = ?, availability = ?, updated_at = ? WHERE id = ?`,
		iv.Name, strings.ToLower(iv.Email), iv.Phone, iv.TimeZone, iv.Active, availability, encodeTime(iv.UpdatedAt), iv.ID)
	if err != nil {
		return fmt.Errorf("update interviewer %s: %w", iv.ID, err)
	}
	return requireAffected(res, persistence.ErrNotFound)
}

func (s *Store) GetInterviewer(ctx context.Context, id string) (persistence.Interviewer, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+interviewerColumns+` FROM interviewers WHERE id = ?`, id)
	return scanInterviewer(row)
}

func (s *Store) GetInterviewerByContact(ctx context.Context, handle string) (persistence.Interviewer, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return persistence.Interviewer{}, persistence.ErrNotFound
	}
	row := s.queryRow(ctx, s.db,
		`SELECT `+interviewerColumns+` FROM interviewers WHERE (email <> '' AND email = ?) OR (phone <> '' AND phone = ?) ORDER BY id LIMIT 1`,
		strings.ToLower(handle), handle)
	return scanInterviewer(row)
}

func (s *Store) ListInterviewers(ctx context.Context, activeOnly bool) ([]persistence.Interviewer, error) {
	query := `SELECT ` + interviewerColumns + ` FROM interviewers`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interviewers: %w", err)
	}
	defer rows.Close()

	var out []persistence.Interviewer
	for rows.Next() {
		iv, err := scanInterviewer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func scanInterviewer(row rowScanner) (persistence.Interviewer, error) {
	var (
		iv                             persistence.Interviewer
		availability, created, updated string
	)
	if err := row.Scan(&iv.ID, &iv.Name, &iv.Email, &iv.Phone, &iv.TimeZone, &iv.Active, &availability, &created, &updated); err != nil {
		return persistence.Interviewer{}, mapError(err)
	}
	windows, err := decodeAvailability(availability)
	if err != nil {
		return persistence.Interviewer{}, err
	}
	iv.Availability = windows
	var d timeDecoder
	iv.CreatedAt = d.at(created)
	iv.UpdatedAt = d.at(updated)
	return iv, d.err
}
