package domain

import (
	"encoding/json"
	"time"
)

// Obj is an astronomical transient source. TNSName and TNSInfo are filled after
// the first successful TNS retrieval; TNSInfo is the raw reply payload of the last
// object fetch, kept as an opaque snapshot.
type Obj struct {
	ID          string
	RA          float64
	Dec         float64
	Redshift    *float64
	InternalKey string
	TNSName     string
	TNSInfo     json.RawMessage
	CreatedAt   time.Time
}

// Photometry is a single brightness measurement attached to an Obj. Either Mag
// (a detection) or LimitingMag (a non-detection) is set.
type Photometry struct {
	ID           int64
	ObjID        string
	InstrumentID int64
	MJD          float64
	Mag          *float64
	MagErr       *float64
	LimitingMag  *float64
	Filter       string
	Origin       string
}

// Spectrum is a wavelength/flux series attached to an Obj, with provenance and
// classification metadata. Altdata carries raw header keywords (e.g. EXPTIME).
type Spectrum struct {
	ID               int64
	ObjID            string
	InstrumentID     int64
	ObservedAt       time.Time
	Wavelengths      []float64
	Fluxes           []float64
	Errors           []float64
	Type             string
	Altdata          map[string]any
	Reducers         []string
	Observers        []string
	ExternalReducer  string
	ExternalObserver string
	Origin           string
}
