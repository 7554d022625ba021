package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	sourcedomain "transient-broker/backend/internal/source/domain"
)

// AddPhotometry inserts measurement rows and shares them with the given groups.
// Rows colliding with an existing (obj, instrument, mjd, filter, origin) tuple are
// skipped, which is what makes repeated retrievals idempotent. Returns the number
// of newly inserted rows.
func (s *Session) AddPhotometry(ctx context.Context, rows []sourcedomain.Photometry, groupIDs []int64) (int, error) {
	inserted := 0
	for _, p := range rows {
		var id int64
		err := s.tx.QueryRow(ctx,
			`INSERT INTO photometry (obj_id, instrument_id, mjd, mag, magerr, limiting_mag, filter, origin)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (obj_id, instrument_id, mjd, filter, origin) DO NOTHING
			 RETURNING id`,
			p.ObjID, p.InstrumentID, p.MJD, p.Mag, p.MagErr, p.LimitingMag, p.Filter, p.Origin,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // duplicate row, nothing to share
		}
		if err != nil {
			return inserted, err
		}
		inserted++
		for _, gid := range groupIDs {
			if _, err := s.tx.Exec(ctx,
				`INSERT INTO photometry_groups (photometry_id, group_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`, id, gid); err != nil {
				return inserted, err
			}
		}
	}
	return inserted, nil
}

// LastNonDetectionBefore returns the latest non-detection (a row with a limiting
// magnitude and no magnitude) strictly before the given MJD, or nil if the
// object has none. Used to anchor discovery reports.
func (s *Session) LastNonDetectionBefore(ctx context.Context, objID string, mjd float64) (*sourcedomain.Photometry, error) {
	var p sourcedomain.Photometry
	err := s.tx.QueryRow(ctx,
		`SELECT id, obj_id, instrument_id, mjd, mag, magerr, limiting_mag, filter, origin
		 FROM photometry
		 WHERE obj_id = $1 AND mag IS NULL AND limiting_mag IS NOT NULL AND mjd < $2
		 ORDER BY mjd DESC LIMIT 1`, objID, mjd,
	).Scan(&p.ID, &p.ObjID, &p.InstrumentID, &p.MJD, &p.Mag, &p.MagErr,
		&p.LimitingMag, &p.Filter, &p.Origin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DetectionsForObj returns the object's detections (rows with a magnitude),
// most recent first. Used to build discovery photometry for TNS submission.
func (s *Session) DetectionsForObj(ctx context.Context, objID string) ([]sourcedomain.Photometry, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT id, obj_id, instrument_id, mjd, mag, magerr, limiting_mag, filter, origin
		 FROM photometry WHERE obj_id = $1 AND mag IS NOT NULL ORDER BY mjd DESC`, objID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sourcedomain.Photometry
	for rows.Next() {
		var p sourcedomain.Photometry
		if err := rows.Scan(&p.ID, &p.ObjID, &p.InstrumentID, &p.MJD, &p.Mag, &p.MagErr,
			&p.LimitingMag, &p.Filter, &p.Origin); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
