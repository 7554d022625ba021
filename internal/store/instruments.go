package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	instrdomain "transient-broker/backend/internal/instrument/domain"
)

// InstrumentByID returns the instrument for id, or nil if not found.
func (s *Session) InstrumentByID(ctx context.Context, id int64) (*instrdomain.Instrument, error) {
	var in instrdomain.Instrument
	err := s.tx.QueryRow(ctx,
		`SELECT id, name, tns_id, tns_filters FROM instruments WHERE id = $1`, id,
	).Scan(&in.ID, &in.Name, &in.TNSID, &in.TNSFilters)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// InstrumentByName returns the instrument matching name case-insensitively, or nil.
// TNS instrument vocabulary is mapped onto the local catalog through this lookup.
func (s *Session) InstrumentByName(ctx context.Context, name string) (*instrdomain.Instrument, error) {
	var in instrdomain.Instrument
	err := s.tx.QueryRow(ctx,
		`SELECT id, name, tns_id, tns_filters FROM instruments WHERE lower(name) = lower($1)`, name,
	).Scan(&in.ID, &in.Name, &in.TNSID, &in.TNSFilters)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}
