package tns

import (
	"fmt"
	"time"
)

// tnsFilterIDs maps local bandpass identifiers onto TNS filter IDs for outgoing
// reports. Inverse of tnsFilterBands for the bands TNS accepts in submissions.
var tnsFilterIDs = map[string]int{
	"clear":     1,
	"bessellux": 2,
	"bessellb":  3,
	"bessellv":  4,
	"bessellr":  5,
	"besselli":  6,
	"sdssu":     20,
	"sdssg":     21,
	"sdssr":     22,
	"sdssi":     23,
	"sdssz":     24,
	"ps1::y":    25,
	"ps1::w":    26,
	"atlasc":    71,
	"atlaso":    72,
	"gaia::g":   75,
}

// abMagUnitID is TNS's flux-unit ID for AB magnitudes.
const abMagUnitID = "1"

// FilterTNSID returns the TNS filter ID for a local bandpass identifier.
func FilterTNSID(band string) (int, error) {
	id, ok := tnsFilterIDs[band]
	if !ok {
		return 0, fmt.Errorf("no TNS filter ID for bandpass %q", band)
	}
	return id, nil
}

// ValueUnit is the {value, units} wrapper TNS expects on coordinates.
type ValueUnit struct {
	Value string `json:"value"`
	Units string `json:"units"`
}

// ReportPhotometry is one photometry entry inside an AT (astronomical
// transient) report. All measurements are strings on the wire.
type ReportPhotometry struct {
	ObsDate        string `json:"obsdate"`
	Flux           string `json:"flux"`
	FluxErr        string `json:"flux_error,omitempty"`
	LimitingFlux   string `json:"limiting_flux,omitempty"`
	FluxUnitsValue string `json:"flux_units_value"`
	FilterValue    string `json:"filter_value"`
	InstrumentVal  string `json:"instrument_value"`
	Comments       string `json:"comments,omitempty"`
}

// NonDetection is the last non-detection preceding discovery, or the archival
// statement when no such measurement exists.
type NonDetection struct {
	ObsDate        string `json:"obsdate,omitempty"`
	LimitingFlux   string `json:"limiting_flux,omitempty"`
	FluxUnitsValue string `json:"flux_units_value,omitempty"`
	FilterValue    string `json:"filter_value,omitempty"`
	InstrumentVal  string `json:"instrument_value,omitempty"`
	ArchiveID      string `json:"archiveid,omitempty"`
	ArchivalRemark string `json:"archival_remarks,omitempty"`
}

// ATReport is one object entry of an at_report submission.
type ATReport struct {
	RA                    ValueUnit                   `json:"ra"`
	Dec                   ValueUnit                   `json:"dec"`
	ReportingGroupID      int                         `json:"reporting_group_id"`
	DiscoveryDataSourceID int                         `json:"discovery_data_source_id"`
	Reporter              string                      `json:"reporter"`
	DiscoveryDatetime     string                      `json:"discovery_datetime"`
	ATType                string                      `json:"at_type"`
	InternalName          string                      `json:"internal_name"`
	Photometry            map[string]map[string]any   `json:"photometry"`
	NonDetection          *NonDetection               `json:"non_detection,omitempty"`
}

// ArchivalNonDetection builds the non-detection block for an archival report.
// TNS requires archiveid "0" (other) with a remark explaining the archive.
func ArchivalNonDetection(remark string) *NonDetection {
	return &NonDetection{ArchiveID: "0", ArchivalRemark: remark}
}

// WrapATReport wraps reports into the bulk-report envelope TNS expects:
// {"at_report": {"0": ..., "1": ...}}.
func WrapATReport(reports ...ATReport) map[string]any {
	entries := map[string]any{}
	for i, r := range reports {
		entries[fmt.Sprintf("%d", i)] = r
	}
	return map[string]any{"at_report": entries}
}

// PhotometryGroup wraps photometry entries into TNS's photometry_group shape.
func PhotometryGroup(entries ...ReportPhotometry) map[string]map[string]any {
	group := map[string]any{}
	for i, e := range entries {
		group[fmt.Sprintf("%d", i)] = e
	}
	return map[string]map[string]any{"photometry_group": group}
}

// ReportSpectrum is one spectrum entry of a classification report. The
// proprietary period is always zero: classification spectra go public
// immediately.
type ReportSpectrum struct {
	ObsDate           string            `json:"obsdate"`
	InstrumentID      int               `json:"instrumentid"`
	ExpTime           string            `json:"exptime,omitempty"`
	Observer          string            `json:"observer"`
	Reducer           string            `json:"reducer,omitempty"`
	SpecTypeID        string            `json:"spectypeid"`
	ASCIIFile         string            `json:"ascii_file"`
	FITSFile          string            `json:"fits_file"`
	Remarks           string            `json:"remarks,omitempty"`
	ProprietaryPeriod ProprietaryPeriod `json:"spec_proprietary_period"`
}

// ProprietaryPeriod is TNS's proprietary-period wrapper.
type ProprietaryPeriod struct {
	Value float64 `json:"spec_proprietary_period_value"`
	Units string  `json:"spec_proprietary_period_units"`
}

// PublicProprietaryPeriod is the zero proprietary period used on every spectrum
// this broker submits.
var PublicProprietaryPeriod = ProprietaryPeriod{Value: 0.0, Units: "years"}

// ClassificationReport is one object entry of a classification_report
// submission.
type ClassificationReport struct {
	Name       string                    `json:"name"`
	Classifier string                    `json:"classifier"`
	ObjTypeID  string                    `json:"objtypeid,omitempty"`
	Redshift   *float64                  `json:"redshift,omitempty"`
	GroupID    int                       `json:"groupid"`
	Remarks    string                    `json:"remarks,omitempty"`
	Spectra    map[string]map[string]any `json:"spectra"`
}

// WrapClassificationReport wraps reports into the bulk-report envelope:
// {"classification_report": {"0": ...}}.
func WrapClassificationReport(reports ...ClassificationReport) map[string]any {
	entries := map[string]any{}
	for i, r := range reports {
		entries[fmt.Sprintf("%d", i)] = r
	}
	return map[string]any{"classification_report": entries}
}

// SpectraGroup wraps spectrum entries into TNS's spectra-group shape.
func SpectraGroup(entries ...ReportSpectrum) map[string]map[string]any {
	group := map[string]any{}
	for i, e := range entries {
		group[fmt.Sprintf("%d", i)] = e
	}
	return map[string]map[string]any{"spectra-group": group}
}

// MJDToObsDate renders a modified Julian date as a TNS observation timestamp.
func MJDToObsDate(mjd float64) string {
	// MJD 40587 is the Unix epoch.
	sec := (mjd - 40587.0) * 86400.0
	return time.Unix(0, int64(sec*float64(time.Second))).UTC().Format(timeLayout)
}
