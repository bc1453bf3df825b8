package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

const slotColumns = `id, interviewer_id, start_at, end_at, status, holder_id, hold_expires_at, created_at, updated_at`

func (s *Store) GetSlot(ctx context.Context, id string) (persistence.Slot, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	return scanSlot(row)
}

func (s *Store) ListSlots(ctx context.Context, filter persistence.SlotFilter) ([]persistence.Slot, error) {
	var (
		where []string
		args  []any
	)
	if filter.InterviewerID != "" {
		where = append(where, `interviewer_id = ?`)
		args = append(args, filter.InterviewerID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(status))
		}
		where = append(where, `status IN (`+strings.Join(marks, ", ")+`)`)
	}
	if filter.StartsBefore != nil {
		where = append(where, `start_at < ?`)
		args = append(args, encodeTime(*filter.StartsBefore))
	}
	if filter.EndsAfter != nil {
		where = append(where, `end_at > ?`)
		args = append(args, encodeTime(*filter.EndsAfter))
	}
	if filter.HoldExpiredAt != nil {
		where = append(where, `status = ?`, `hold_expires_at IS NOT NULL`, `hold_expires_at <= ?`)
		args = append(args, string(persistence.SlotHeld), encodeTime(*filter.HoldExpiredAt))
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY start_at, id`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var out []persistence.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

// ClaimSlot relies on a conditional upsert: the update branch only fires for
// rows that are open, so exactly one concurrent claimant affects a row.
func (s *Store) ClaimSlot(ctx context.Context, slot persistence.Slot) error {
	res, err := s.exec(ctx, s.db, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			holder_id = excluded.holder_id,
			hold_expires_at = excluded.hold_expires_at,
			updated_at = excluded.updated_at
		WHERE slots.status = ?`,
		slot.ID, slot.InterviewerID, encodeTime(slot.Start), encodeTime(slot.End), string(persistence.SlotHeld),
		slot.HolderID, encodeNullTime(slot.HoldExpiresAt), encodeTime(slot.CreatedAt), encodeTime(slot.UpdatedAt),
		string(persistence.SlotOpen))
	if err != nil {
		return fmt.Errorf("claim slot %s: %w", slot.ID, err)
	}
	return requireAffected(res, persistence.ErrConflict)
}

func (s *Store) BookSlot(ctx context.Context, id, holderID string, at time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE slots SET status = ?, hold_expires_at = NULL, updated_at = ? WHERE id = ? AND status = ? AND holder_id = ?`,
		string(persistence.SlotBooked), encodeTime(at), id, string(persistence.SlotHeld), holderID)
	if err != nil {
		return fmt.Errorf("book slot %s: %w", id, err)
	}
	return s.slotOutcome(ctx, res, id)
}

func (s *Store) RenewHold(ctx context.Context, id, holderID string, until, at time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE slots SET hold_expires_at = ?, updated_at = ? WHERE id = ? AND status = ? AND holder_id = ?`,
		encodeTime(until), encodeTime(at), id, string(persistence.SlotHeld), holderID)
	if err != nil {
		return fmt.Errorf("renew hold %s: %w", id, err)
	}
	return s.slotOutcome(ctx, res, id)
}

func (s *Store) ReleaseSlot(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE slots SET status = ?, holder_id = '', hold_expires_at = NULL, updated_at = ? WHERE id = ?`,
		string(persistence.SlotOpen), encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", id, err)
	}
	return requireAffected(res, persistence.ErrNotFound)
}

// slotOutcome distinguishes a missing slot from a failed condition.
func (s *Store) slotOutcome(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetSlot(ctx, id); err != nil {
		return err
	}
	return persistence.ErrConflict
}

func scanSlot(row rowScanner) (persistence.Slot, error) {
	var (
		slot                         persistence.Slot
		start, end, created, updated string
		status                       string
		holdExpires                  sql.NullString
	)
	if err := row.Scan(&slot.ID, &slot.InterviewerID, &start, &end, &status, &slot.HolderID, &holdExpires, &created, &updated); err != nil {
		return persistence.Slot{}, mapError(err)
	}
	slot.Status = persistence.SlotStatus(status)
	var d timeDecoder
	slot.Start = d.at(start)
	slot.End = d.at(end)
	slot.HoldExpiresAt = d.ptr(holdExpires)
	slot.CreatedAt = d.at(created)
	slot.UpdatedAt = d.at(updated)
	return slot, d.err
}
