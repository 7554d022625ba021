package tns

import (
	"context"
	"strings"
	"testing"

	instrdomain "transient-broker/backend/internal/instrument/domain"
)

type fakeInstruments struct {
	byName map[string]*instrdomain.Instrument
}

func (f *fakeInstruments) InstrumentByName(_ context.Context, name string) (*instrdomain.Instrument, error) {
	return f.byName[strings.ToLower(name)], nil
}

func ztfInstruments() *fakeInstruments {
	return &fakeInstruments{byName: map[string]*instrdomain.Instrument{
		"ztf-cam": {ID: 11, Name: "ZTF-Cam", TNSID: 196},
		"sedm":    {ID: 12, Name: "SEDM", TNSID: 149},
	}}
}

func TestTranslatePhotometryDetection(t *testing.T) {
	rec := PhotometryRecord{
		JD:         2460310.5,
		Flux:       "18.42",
		FluxErr:    "0.05",
		FluxUnit:   NameRef{Name: "ABMag"},
		Filter:     NameRef{Name: "r"},
		Instrument: NameRef{Name: "ZTF-Cam"},
	}
	rows, instID, err := TranslatePhotometry(context.Background(), rec, ztfInstruments())
	if err != nil {
		t.Fatalf("TranslatePhotometry: %v", err)
	}
	if instID != 11 {
		t.Errorf("instrument id = %d, want 11", instID)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.MJD != 2460310.5-2400000.5 {
		t.Errorf("mjd = %v", row.MJD)
	}
	if row.Filter != "sdssr" {
		t.Errorf("filter = %q, want sdssr", row.Filter)
	}
	if row.Mag == nil || *row.Mag != 18.42 {
		t.Errorf("mag = %v", row.Mag)
	}
	if row.MagErr == nil || *row.MagErr != 0.05 {
		t.Errorf("magerr = %v", row.MagErr)
	}
	if row.LimitingMag != nil {
		t.Errorf("limiting mag = %v, want nil", row.LimitingMag)
	}
	if row.Origin != "TNS" {
		t.Errorf("origin = %q", row.Origin)
	}
}

func TestTranslatePhotometryNonDetection(t *testing.T) {
	rec := PhotometryRecord{
		JD:         2460310.5,
		LimFlux:    "20.1",
		Filter:     NameRef{Name: "g"},
		Instrument: NameRef{Name: "ZTF-Cam"},
	}
	rows, _, err := TranslatePhotometry(context.Background(), rec, ztfInstruments())
	if err != nil {
		t.Fatalf("TranslatePhotometry: %v", err)
	}
	row := rows[0]
	if row.Mag != nil {
		t.Errorf("mag = %v, want nil", row.Mag)
	}
	if row.LimitingMag == nil || *row.LimitingMag != 20.1 {
		t.Errorf("limiting mag = %v", row.LimitingMag)
	}
	if row.Filter != "sdssg" {
		t.Errorf("filter = %q", row.Filter)
	}
}

func TestTranslatePhotometryRejections(t *testing.T) {
	base := PhotometryRecord{
		JD:         2460310.5,
		Flux:       "18.0",
		Filter:     NameRef{Name: "r"},
		Instrument: NameRef{Name: "ZTF-Cam"},
	}
	cases := []struct {
		name   string
		mutate func(*PhotometryRecord)
		want   string
	}{
		{"unknown instrument", func(r *PhotometryRecord) { r.Instrument.Name = "NOT-A-CAM" }, "unknown TNS instrument"},
		{"unknown filter", func(r *PhotometryRecord) { r.Filter.Name = "narrowband-x" }, "unknown TNS filter"},
		{"bad flux unit", func(r *PhotometryRecord) { r.FluxUnit.Name = "Jansky" }, "unsupported flux unit"},
		{"missing jd", func(r *PhotometryRecord) { r.JD = 0 }, "no JD"},
		{"no measurement", func(r *PhotometryRecord) { r.Flux = "" }, "neither flux"},
		{"garbage flux", func(r *PhotometryRecord) { r.Flux = "bright" }, "parse flux"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := base
			tc.mutate(&rec)
			_, _, err := TranslatePhotometry(context.Background(), rec, ztfInstruments())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestTranslateSpectrum(t *testing.T) {
	rec := SpectrumRecord{
		ObsDate:    "2024-01-05 08:30:00",
		Instrument: NameRef{Name: "SEDM"},
		ExpTime:    "1800",
		Observer:   "J. Observer",
		Reducer:    "R. Reducer",
		SpecType:   NameRef{Name: "Object"},
		ASCIIData:  "# wavelength flux err\n4000.0 1.25 0.02\n4001.0 1.30 0.02\n\n4002.0 1.28 0.03\n",
	}
	sp, err := TranslateSpectrum(context.Background(), rec, ztfInstruments())
	if err != nil {
		t.Fatalf("TranslateSpectrum: %v", err)
	}
	if sp.InstrumentID != 12 {
		t.Errorf("instrument id = %d", sp.InstrumentID)
	}
	if got := sp.ObservedAt.Format("2006-01-02 15:04:05"); got != "2024-01-05 08:30:00" {
		t.Errorf("observed at = %s", got)
	}
	if len(sp.Wavelengths) != 3 || sp.Wavelengths[2] != 4002.0 {
		t.Errorf("wavelengths = %v", sp.Wavelengths)
	}
	if len(sp.Fluxes) != 3 || sp.Fluxes[0] != 1.25 {
		t.Errorf("fluxes = %v", sp.Fluxes)
	}
	if len(sp.Errors) != 3 || sp.Errors[2] != 0.03 {
		t.Errorf("errors = %v", sp.Errors)
	}
	if sp.Type != "object" {
		t.Errorf("type = %q", sp.Type)
	}
	if sp.ExternalObserver != "J. Observer" || sp.ExternalReducer != "R. Reducer" {
		t.Errorf("provenance = %q / %q", sp.ExternalObserver, sp.ExternalReducer)
	}
	if exp, ok := sp.Altdata["EXPTIME"].(float64); !ok || exp != 1800 {
		t.Errorf("altdata = %v", sp.Altdata)
	}
	if sp.Origin != "TNS" {
		t.Errorf("origin = %q", sp.Origin)
	}
}

func TestTranslateSpectrumTwoColumns(t *testing.T) {
	rec := SpectrumRecord{
		ObsDate:    "2024-01-05",
		Instrument: NameRef{Name: "SEDM"},
		ASCIIData:  "4000 1.0\n4001 1.1\n",
	}
	sp, err := TranslateSpectrum(context.Background(), rec, ztfInstruments())
	if err != nil {
		t.Fatalf("TranslateSpectrum: %v", err)
	}
	if sp.Errors != nil {
		t.Errorf("errors = %v, want nil", sp.Errors)
	}
	if sp.Type != "object" {
		t.Errorf("unset spectype should default to object, got %q", sp.Type)
	}
}

func TestTranslateSpectrumRejections(t *testing.T) {
	base := SpectrumRecord{
		ObsDate:    "2024-01-05 08:30:00",
		Instrument: NameRef{Name: "SEDM"},
		ASCIIData:  "4000 1.0\n",
	}
	cases := []struct {
		name   string
		mutate func(*SpectrumRecord)
		want   string
	}{
		{"unknown instrument", func(r *SpectrumRecord) { r.Instrument.Name = "mystery" }, "unknown TNS instrument"},
		{"bad date", func(r *SpectrumRecord) { r.ObsDate = "Jan 5 2024" }, "parse observation date"},
		{"empty data", func(r *SpectrumRecord) { r.ASCIIData = "# header only\n" }, "no data rows"},
		{"ragged columns", func(r *SpectrumRecord) { r.ASCIIData = "4000 1.0 0.1\n4001 1.1\n" }, "error column present on"},
		{"too many columns", func(r *SpectrumRecord) { r.ASCIIData = "4000 1.0 0.1 9\n" }, "want 2 or 3 columns"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := base
			tc.mutate(&rec)
			_, err := TranslateSpectrum(context.Background(), rec, ztfInstruments())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestSpectrumTypeIndex(t *testing.T) {
	for i, name := range []string{"object", "host", "sky", "arcs", "synthetic"} {
		idx, err := SpectrumTypeIndex(name)
		if err != nil {
			t.Fatalf("SpectrumTypeIndex(%q): %v", name, err)
		}
		if idx != i+1 {
			t.Errorf("SpectrumTypeIndex(%q) = %d, want %d", name, idx, i+1)
		}
	}
	if _, err := SpectrumTypeIndex("galaxy"); err == nil {
		t.Error("expected error for unknown spectrum type")
	}
}
