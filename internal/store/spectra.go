package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	sourcedomain "transient-broker/backend/internal/source/domain"
)

// AddSpectrum inserts a spectrum and shares it with the given groups. A spectrum
// colliding with an existing (obj, instrument, observed_at, origin) tuple is
// skipped, mirroring the photometry idempotence policy.
func (s *Session) AddSpectrum(ctx context.Context, sp *sourcedomain.Spectrum, groupIDs []int64) error {
	var altdata []byte
	if sp.Altdata != nil {
		var err error
		if altdata, err = json.Marshal(sp.Altdata); err != nil {
			return err
		}
	}
	var id int64
	err := s.tx.QueryRow(ctx,
		`INSERT INTO spectra (obj_id, instrument_id, observed_at, wavelengths, fluxes, errors,
		                      type, altdata, reducers, observers, external_reducer, external_observer, origin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13)
		 ON CONFLICT (obj_id, instrument_id, observed_at, origin) DO NOTHING
		 RETURNING id`,
		sp.ObjID, sp.InstrumentID, sp.ObservedAt, sp.Wavelengths, sp.Fluxes, sp.Errors,
		sp.Type, altdata, sp.Reducers, sp.Observers, sp.ExternalReducer, sp.ExternalObserver, sp.Origin,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // duplicate spectrum
	}
	if err != nil {
		return err
	}
	for _, gid := range groupIDs {
		if _, err := s.tx.Exec(ctx,
			`INSERT INTO spectrum_groups (spectrum_id, group_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, id, gid); err != nil {
			return err
		}
	}
	return nil
}

// SpectrumByID returns the spectrum for id with provenance fields, or nil.
func (s *Session) SpectrumByID(ctx context.Context, id int64) (*sourcedomain.Spectrum, error) {
	var sp sourcedomain.Spectrum
	var altdata []byte
	err := s.tx.QueryRow(ctx,
		`SELECT id, obj_id, instrument_id, observed_at, wavelengths, fluxes, errors, type,
		        altdata, reducers, observers, COALESCE(external_reducer, ''),
		        COALESCE(external_observer, ''), origin
		 FROM spectra WHERE id = $1`, id,
	).Scan(&sp.ID, &sp.ObjID, &sp.InstrumentID, &sp.ObservedAt, &sp.Wavelengths, &sp.Fluxes,
		&sp.Errors, &sp.Type, &altdata, &sp.Reducers, &sp.Observers, &sp.ExternalReducer,
		&sp.ExternalObserver, &sp.Origin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(altdata) > 0 {
		if err := json.Unmarshal(altdata, &sp.Altdata); err != nil {
			return nil, err
		}
	}
	return &sp, nil
}
