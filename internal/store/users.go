package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	groupdomain "transient-broker/backend/internal/group/domain"
	userdomain "transient-broker/backend/internal/user/domain"
)

// UserByID returns the user for id, or nil if not found.
func (s *Session) UserByID(ctx context.Context, id int64) (*userdomain.User, error) {
	var u userdomain.User
	err := s.tx.QueryRow(ctx,
		`SELECT id, username, roles FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AccessibleGroupIDs returns the IDs of all groups the user belongs to.
func (s *Session) AccessibleGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT group_id FROM group_users WHERE user_id = $1 ORDER BY group_id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GroupByID returns the group for id, or nil if not found.
func (s *Session) GroupByID(ctx context.Context, id int64) (*groupdomain.Group, error) {
	var g groupdomain.Group
	err := s.tx.QueryRow(ctx,
		`SELECT id, name FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
