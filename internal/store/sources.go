package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	sourcedomain "transient-broker/backend/internal/source/domain"
)

// ObjByID returns the object for id, or nil if not found.
func (s *Session) ObjByID(ctx context.Context, id string) (*sourcedomain.Obj, error) {
	var o sourcedomain.Obj
	var info []byte
	err := s.tx.QueryRow(ctx,
		`SELECT id, ra, dec, redshift, internal_key, COALESCE(tns_name, ''), tns_info, created_at
		 FROM objs WHERE id = $1`, id,
	).Scan(&o.ID, &o.RA, &o.Dec, &o.Redshift, &o.InternalKey, &o.TNSName, &info, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.TNSInfo = json.RawMessage(info)
	return &o, nil
}

// CreateSource inserts a new object and shares it with the given groups.
func (s *Session) CreateSource(ctx context.Context, obj *sourcedomain.Obj, groupIDs []int64) error {
	_, err := s.tx.Exec(ctx,
		`INSERT INTO objs (id, ra, dec, redshift, internal_key)
		 VALUES ($1, $2, $3, $4, $5)`,
		obj.ID, obj.RA, obj.Dec, obj.Redshift, obj.InternalKey)
	if err != nil {
		return err
	}
	for _, gid := range groupIDs {
		if _, err := s.tx.Exec(ctx,
			`INSERT INTO obj_groups (obj_id, group_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, obj.ID, gid); err != nil {
			return err
		}
	}
	return nil
}

// SetObjTNSName records the TNS-assigned name on the object.
func (s *Session) SetObjTNSName(ctx context.Context, objID, tnsName string) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE objs SET tns_name = $2 WHERE id = $1`, objID, tnsName)
	return err
}

// SetObjTNSInfo caches the raw TNS reply payload on the object.
func (s *Session) SetObjTNSInfo(ctx context.Context, objID string, info json.RawMessage) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE objs SET tns_info = $2 WHERE id = $1`, objID, []byte(info))
	return err
}
