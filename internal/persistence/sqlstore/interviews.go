package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

const interviewColumns = `id, batch_id, candidate_id, interviewer_id, state, slot_id, slot_start, slot_end,
	candidate_confirmed, interviewer_confirmed, attempts, retries, interviewer_rejections, reminder_count,
	pending_event, response_deadline, next_retry_at, last_reminder_at, meeting_link, feedback_text, feedback_outcome,
	created_at, last_transition_at, updated_at, archived_at, version`

func (s *Store) CreateInterview(ctx context.Context, iv persistence.Interview) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO interviews (`+interviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.BatchID, iv.CandidateID, iv.InterviewerID, iv.State, iv.SlotID,
		encodeNullTime(iv.SlotStart), encodeNullTime(iv.SlotEnd),
		iv.CandidateConfirmed, iv.InterviewerConfirmed, iv.Attempts, iv.Retries, iv.InterviewerRejections, iv.ReminderCount,
		iv.PendingEvent, encodeNullTime(iv.ResponseDeadline), encodeNullTime(iv.NextRetryAt), encodeNullTime(iv.LastReminderAt),
		iv.MeetingLink, iv.FeedbackText, iv.FeedbackOutcome,
		encodeTime(iv.CreatedAt), encodeTime(iv.LastTransitionAt), encodeTime(iv.UpdatedAt), encodeNullTime(iv.ArchivedAt), iv.Version)
	if err != nil {
		return fmt.Errorf("insert interview %s: %w", iv.ID, err)
	}
	return nil
}

func (s *Store) GetInterview(ctx context.Context, id string) (persistence.Interview, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id)
	return scanInterview(row)
}

// UpdateInterview performs an optimistic write keyed on the version column.
func (s *Store) UpdateInterview(ctx context.Context, iv persistence.Interview) (persistence.Interview, error) {
	res, err := s.exec(ctx, s.db, `
		UPDATE interviews SET
			batch_id = ?, candidate_id = ?, interviewer_id = ?, state = ?, slot_id = ?, slot_start = ?, slot_end = ?,
			candidate_confirmed = ?, interviewer_confirmed = ?, attempts = ?, retries = ?, interviewer_rejections = ?,
			reminder_count = ?, pending_event = ?, response_deadline = ?, next_retry_at = ?, last_reminder_at = ?,
			meeting_link = ?, feedback_text = ?, feedback_outcome = ?, last_transition_at = ?, updated_at = ?,
			archived_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		iv.BatchID, iv.CandidateID, iv.InterviewerID, iv.State, iv.SlotID, encodeNullTime(iv.SlotStart), encodeNullTime(iv.SlotEnd),
		iv.CandidateConfirmed, iv.InterviewerConfirmed, iv.Attempts, iv.Retries, iv.InterviewerRejections,
		iv.ReminderCount, iv.PendingEvent, encodeNullTime(iv.ResponseDeadline), encodeNullTime(iv.NextRetryAt), encodeNullTime(iv.LastReminderAt),
		iv.MeetingLink, iv.FeedbackText, iv.FeedbackOutcome, encodeTime(iv.LastTransitionAt), encodeTime(iv.UpdatedAt),
		encodeNullTime(iv.ArchivedAt),
		iv.ID, iv.Version)
	if err != nil {
		return persistence.Interview{}, fmt.Errorf("update interview %s: %w", iv.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence.Interview{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetInterview(ctx, iv.ID); err != nil {
			return persistence.Interview{}, err
		}
		return persistence.Interview{}, persistence.ErrConflict
	}
	iv.Version++
	return iv, nil
}

func (s *Store) ListInterviews(ctx context.Context, f persistence.InterviewFilter) ([]persistence.Interview, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, values ...any) {
		where = append(where, clause)
		args = append(args, values...)
	}
	if !f.IncludeArchived {
		add(`archived_at IS NULL`)
	}
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		values := make([]any, len(f.States))
		for i, state := range f.States {
			marks[i] = "?"
			values[i] = state
		}
		add(`state IN (`+strings.Join(marks, ", ")+`)`, values...)
	}
	if f.CandidateID != "" {
		add(`candidate_id = ?`, f.CandidateID)
	}
	if f.InterviewerID != "" {
		add(`interviewer_id = ?`, f.InterviewerID)
	}
	if f.BatchID != "" {
		add(`batch_id = ?`, f.BatchID)
	}
	if f.DeadlineAfter != nil {
		add(`response_deadline > ?`, encodeTime(*f.DeadlineAfter))
	}
	if f.DeadlineBefore != nil {
		add(`response_deadline <= ?`, encodeTime(*f.DeadlineBefore))
	}
	if f.RetryDueBy != nil {
		add(`next_retry_at <= ?`, encodeTime(*f.RetryDueBy))
	}
	if f.SlotStartFrom != nil {
		add(`slot_start >= ?`, encodeTime(*f.SlotStartFrom))
	}
	if f.SlotStartTo != nil {
		add(`slot_start <= ?`, encodeTime(*f.SlotStartTo))
	}
	if f.TransitionBy != nil {
		add(`last_transition_at <= ?`, encodeTime(*f.TransitionBy))
	}

	query := `SELECT ` + interviewColumns + ` FROM interviews`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	var out []persistence.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *Store) MarkArchived(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, s.db, `UPDATE interviews SET archived_at = ? WHERE id = ?`, encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("archive interview %s: %w", id, err)
	}
	return requireAffected(res, persistence.ErrNotFound)
}

func scanInterview(row rowScanner) (persistence.Interview, error) {
	var (
		iv                                          persistence.Interview
		slotStart, slotEnd, deadline, retry, remind sql.NullString
		archived                                    sql.NullString
		created, transitioned, updated              string
	)
	err := row.Scan(&iv.ID, &iv.BatchID, &iv.CandidateID, &iv.InterviewerID, &iv.State, &iv.SlotID, &slotStart, &slotEnd,
		&iv.CandidateConfirmed, &iv.InterviewerConfirmed, &iv.Attempts, &iv.Retries, &iv.InterviewerRejections, &iv.ReminderCount,
		&iv.PendingEvent, &deadline, &retry, &remind, &iv.MeetingLink, &iv.FeedbackText, &iv.FeedbackOutcome,
		&created, &transitioned, &updated, &archived, &iv.Version)
	if err != nil {
		return persistence.Interview{}, mapError(err)
	}
	var d timeDecoder
	iv.SlotStart = d.ptr(slotStart)
	iv.SlotEnd = d.ptr(slotEnd)
	iv.ResponseDeadline = d.ptr(deadline)
	iv.NextRetryAt = d.ptr(retry)
	iv.LastReminderAt = d.ptr(remind)
	iv.CreatedAt = d.at(created)
	iv.LastTransitionAt = d.at(transitioned)
	iv.UpdatedAt = d.at(updated)
	iv.ArchivedAt = d.ptr(archived)
	return iv, d.err
}
