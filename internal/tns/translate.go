package tns

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	instrdomain "transient-broker/backend/internal/instrument/domain"
	sourcedomain "transient-broker/backend/internal/source/domain"
)

// origin recorded on every measurement imported from TNS. Together with the
// per-row uniqueness constraint it keeps re-retrievals from duplicating data.
const Origin = "TNS"

// julianOffset converts Julian dates to modified Julian dates.
const julianOffset = 2400000.5

// InstrumentResolver maps TNS instrument vocabulary onto the local catalog.
// Implemented by the store session.
type InstrumentResolver interface {
	InstrumentByName(ctx context.Context, name string) (*instrdomain.Instrument, error)
}

// tnsFilterBands maps TNS filter names onto local bandpass identifiers.
var tnsFilterBands = map[string]string{
	"Clear":   "clear",
	"clear":   "clear",
	"u":       "sdssu",
	"g":       "sdssg",
	"r":       "sdssr",
	"i":       "sdssi",
	"z":       "sdssz",
	"u-Sloan": "sdssu",
	"g-Sloan": "sdssg",
	"r-Sloan": "sdssr",
	"i-Sloan": "sdssi",
	"z-Sloan": "sdssz",
	"U":       "bessellux",
	"B":       "bessellb",
	"V":       "bessellv",
	"R":       "bessellr",
	"I":       "besselli",
	"orange":  "atlaso",
	"cyan":    "atlasc",
	"G":       "gaia::g",
	"w":       "ps1::w",
	"y":       "ps1::y",
}

// SpectrumTypes enumerates TNS classification spectrum types in TNS's index
// order; indices on the wire are 1-based.
var SpectrumTypes = []string{"object", "host", "sky", "arcs", "synthetic"}

// SpectrumTypeIndex returns the 1-based TNS index for a spectrum type name.
func SpectrumTypeIndex(name string) (int, error) {
	for i, t := range SpectrumTypes {
		if t == name {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("invalid spectrum type %q: must be one of %s", name, strings.Join(SpectrumTypes, ", "))
}

// TranslatePhotometry converts one TNS photometry record into local measurement
// rows plus the resolved instrument ID. Failures are per-record; callers collect
// them without aborting the batch.
func TranslatePhotometry(ctx context.Context, rec PhotometryRecord, instruments InstrumentResolver) ([]sourcedomain.Photometry, int64, error) {
	inst, err := instruments.InstrumentByName(ctx, rec.Instrument.Name)
	if err != nil {
		return nil, 0, fmt.Errorf("look up instrument %q: %w", rec.Instrument.Name, err)
	}
	if inst == nil {
		return nil, 0, fmt.Errorf("unknown TNS instrument %q", rec.Instrument.Name)
	}

	band, ok := tnsFilterBands[rec.Filter.Name]
	if !ok {
		return nil, 0, fmt.Errorf("unknown TNS filter %q", rec.Filter.Name)
	}
	if u := rec.FluxUnit.Name; u != "" && u != "ABMag" {
		return nil, 0, fmt.Errorf("unsupported flux unit %q", u)
	}
	if rec.JD == 0 {
		return nil, 0, fmt.Errorf("photometry record has no JD")
	}

	row := sourcedomain.Photometry{
		InstrumentID: inst.ID,
		MJD:          rec.JD - julianOffset,
		Filter:       band,
		Origin:       Origin,
	}
	switch {
	case rec.Flux != "":
		mag, err := strconv.ParseFloat(rec.Flux, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("parse flux %q: %w", rec.Flux, err)
		}
		row.Mag = &mag
		if rec.FluxErr != "" {
			magErr, err := strconv.ParseFloat(rec.FluxErr, 64)
			if err != nil {
				return nil, 0, fmt.Errorf("parse flux error %q: %w", rec.FluxErr, err)
			}
			row.MagErr = &magErr
		}
	case rec.LimFlux != "":
		lim, err := strconv.ParseFloat(rec.LimFlux, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("parse limiting flux %q: %w", rec.LimFlux, err)
		}
		row.LimitingMag = &lim
	default:
		return nil, 0, fmt.Errorf("photometry record has neither flux nor limiting flux")
	}

	return []sourcedomain.Photometry{row}, inst.ID, nil
}

// TranslateSpectrum converts one TNS spectrum record into a local spectrum row,
// parsing the ASCII wavelength/flux[/error] columns and observation metadata.
func TranslateSpectrum(ctx context.Context, rec SpectrumRecord, instruments InstrumentResolver) (*sourcedomain.Spectrum, error) {
	inst, err := instruments.InstrumentByName(ctx, rec.Instrument.Name)
	if err != nil {
		return nil, fmt.Errorf("look up instrument %q: %w", rec.Instrument.Name, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("unknown TNS instrument %q", rec.Instrument.Name)
	}

	observedAt, err := parseObsDate(rec.ObsDate)
	if err != nil {
		return nil, err
	}

	wavelengths, fluxes, errCol, err := parseASCIIColumns(rec.ASCIIData)
	if err != nil {
		return nil, err
	}

	sp := &sourcedomain.Spectrum{
		InstrumentID:     inst.ID,
		ObservedAt:       observedAt,
		Wavelengths:      wavelengths,
		Fluxes:           fluxes,
		Errors:           errCol,
		Type:             spectrumTypeName(rec.SpecType.Name),
		ExternalObserver: rec.Observer,
		ExternalReducer:  rec.Reducer,
		Origin:           Origin,
	}
	if rec.ExpTime != "" {
		exp, err := strconv.ParseFloat(rec.ExpTime, 64)
		if err != nil {
			return nil, fmt.Errorf("parse exposure time %q: %w", rec.ExpTime, err)
		}
		sp.Altdata = map[string]any{"EXPTIME": exp}
	}
	return sp, nil
}

func spectrumTypeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range SpectrumTypes {
		if t == name {
			return t
		}
	}
	return "object"
}

func parseObsDate(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse observation date %q", s)
}

// parseASCIIColumns parses whitespace-separated wavelength/flux[/error] lines.
// The error column must be present on all rows or none.
func parseASCIIColumns(data string) (wavelengths, fluxes, errCol []float64, err error) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, nil, nil, fmt.Errorf("spectrum line %q: want 2 or 3 columns, got %d", line, len(fields))
		}
		w, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse wavelength %q: %w", fields[0], err)
		}
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse flux %q: %w", fields[1], err)
		}
		wavelengths = append(wavelengths, w)
		fluxes = append(fluxes, f)
		if len(fields) == 3 {
			e, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("parse flux error %q: %w", fields[2], err)
			}
			errCol = append(errCol, e)
		}
	}
	if len(wavelengths) == 0 {
		return nil, nil, nil, fmt.Errorf("spectrum has no data rows")
	}
	if errCol != nil && len(errCol) != len(wavelengths) {
		return nil, nil, nil, fmt.Errorf("spectrum error column present on %d of %d rows", len(errCol), len(wavelengths))
	}
	return wavelengths, fluxes, errCol, nil
}
