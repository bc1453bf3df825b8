package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

func (s *Store) AddFeedbackNote(ctx context.Context, note persistence.FeedbackNote) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO feedback_notes (id, interview_id, source_id, outcome, summary, body, supplemental, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.InterviewID, note.SourceID, note.Outcome, note.Summary, note.Text, note.Supplemental,
		encodeTime(note.ReceivedAt), encodeTime(note.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert feedback note %s: %w", note.ID, err)
	}
	return nil
}

func (s *Store) ListFeedbackNotes(ctx context.Context, interviewID string) ([]persistence.FeedbackNote, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, interview_id, source_id, outcome, summary, body, supplemental, received_at, created_at
		FROM feedback_notes WHERE interview_id = ? ORDER BY created_at, id`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("list feedback notes: %w", err)
	}
	defer rows.Close()

	var out []persistence.FeedbackNote
	for rows.Next() {
		var (
			note              persistence.FeedbackNote
			received, created string
		)
		if err := rows.Scan(&note.ID, &note.InterviewID, &note.SourceID, &note.Outcome, &note.Summary, &note.Text,
			&note.Supplemental, &received, &created); err != nil {
			return nil, mapError(err)
		}
		var d timeDecoder
		note.ReceivedAt = d.at(received)
		note.CreatedAt = d.at(created)
		if d.err != nil {
			return nil, d.err
		}
		out = append(out, note)
	}
	return out, rows.Err()
}

func (s *Store) CreateBatch(ctx context.Context, b persistence.Batch) error {
	ids, err := encodeJSON(nonNil(b.InterviewIDs))
	if err != nil {
		return err
	}
	skipped, err := encodeJSON(nonNil(b.Skipped))
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, `
		INSERT INTO batches (id, requested_by, min_score, top_n, interview_ids, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RequestedBy, b.MinScore, b.TopN, ids, skipped, encodeTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (persistence.Batch, error) {
	var (
		b                     persistence.Batch
		ids, skipped, created string
	)
	err := s.queryRow(ctx, s.db,
		`SELECT id, requested_by, min_score, top_n, interview_ids, skipped, created_at FROM batches WHERE id = ?`, id).
		Scan(&b.ID, &b.RequestedBy, &b.MinScore, &b.TopN, &ids, &skipped, &created)
	if err != nil {
		return persistence.Batch{}, mapError(err)
	}
	if err := json.Unmarshal([]byte(ids), &b.InterviewIDs); err != nil {
		return persistence.Batch{}, fmt.Errorf("decode batch interview ids: %w", err)
	}
	if err := json.Unmarshal([]byte(skipped), &b.Skipped); err != nil {
		return persistence.Batch{}, fmt.Errorf("decode batch skipped ids: %w", err)
	}
	b.CreatedAt, err = decodeTime(created)
	return b, err
}

func (s *Store) EnqueueInboxItem(ctx context.Context, item persistence.InboxItem) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO inbox_items (id, channel, sender, subject, body, received_at, consumed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Channel, item.Sender, item.Subject, item.Body,
		encodeTime(item.ReceivedAt), encodeNullTime(item.ConsumedAt), encodeTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue inbox item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) ListPendingInboxItems(ctx context.Context, limit int) ([]persistence.InboxItem, error) {
	query := `SELECT id, channel, sender, subject, body, received_at, consumed_at, created_at
		FROM inbox_items WHERE consumed_at IS NULL ORDER BY received_at, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.query(ctx, s.db, query)
	if err != nil {
		return nil, fmt.Errorf("list inbox items: %w", err)
	}
	defer rows.Close()

	var out []persistence.InboxItem
	for rows.Next() {
		var (
			item              persistence.InboxItem
			received, created string
			consumed          sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Channel, &item.Sender, &item.Subject, &item.Body, &received, &consumed, &created); err != nil {
			return nil, mapError(err)
		}
		var d timeDecoder
		item.ReceivedAt = d.at(received)
		item.ConsumedAt = d.ptr(consumed)
		item.CreatedAt = d.at(created)
		if d.err != nil {
			return nil, d.err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) MarkInboxItemConsumed(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, s.db, `UPDATE inbox_items SET consumed_at = ? WHERE id = ?`, encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("consume inbox item %s: %w", id, err)
	}
	return requireAffected(res, persistence.ErrNotFound)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
