package tns

import "encoding/json"

// NameRef is TNS's {id, name} reference shape used for instruments, filters,
// telescopes, and spectrum types.
type NameRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SearchResult is one row of a TNS search reply.
type SearchResult struct {
	ObjName string `json:"objname"`
	Prefix  string `json:"prefix"`
	ObjID   int64  `json:"objid"`
}

// PhotometryRecord is one photometry entry of a TNS object reply. TNS encodes
// numeric measurements as strings; empty flux with a limiting flux marks a
// non-detection.
type PhotometryRecord struct {
	JD         float64 `json:"jd"`
	Flux       string  `json:"flux"`
	FluxErr    string  `json:"fluxerr"`
	LimFlux    string  `json:"limflux"`
	FluxUnit   NameRef `json:"flux_unit"`
	Filter     NameRef `json:"filters"`
	Instrument NameRef `json:"instrument"`
	Telescope  NameRef `json:"telescope"`
	ObsDate    string  `json:"obsdate"`
	Remarks    string  `json:"remarks"`
}

// SpectrumRecord is one spectrum entry of a TNS object reply. ASCIIData holds the
// whitespace-separated wavelength/flux[/error] columns of the uploaded file.
type SpectrumRecord struct {
	ObsDate    string  `json:"obsdate"`
	Instrument NameRef `json:"instrument"`
	ExpTime    string  `json:"exptime"`
	Observer   string  `json:"observer"`
	Reducer    string  `json:"reducer"`
	SpecType   NameRef `json:"spectype"`
	ASCIIData  string  `json:"asciidata"`
	Remarks    string  `json:"remarks"`
}

// ObjectReply is the parsed reply of a TNS object fetch. Raw preserves the whole
// reply payload for caching on the local object.
type ObjectReply struct {
	ObjName    string             `json:"objname"`
	NamePrefix string             `json:"name_prefix"`
	RADeg      float64            `json:"radeg"`
	DecDeg     float64            `json:"decdeg"`
	Redshift   *float64           `json:"redshift"`
	Photometry []PhotometryRecord `json:"photometry"`
	Spectra    []SpectrumRecord   `json:"spectra"`
	Raw        json.RawMessage    `json:"-"`
}
