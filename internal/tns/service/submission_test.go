package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	instrdomain "transient-broker/backend/internal/instrument/domain"
	sourcedomain "transient-broker/backend/internal/source/domain"
)

func submissionFixture(t *testing.T) (*SubmissionService, *fakeSession, *fakeWire, *fakeNotifier) {
	t.Helper()
	vault := testVault(t)
	sess := newFakeSession()
	sess.robots[1] = testRobot(t, vault)
	sess.instruments[11] = &instrdomain.Instrument{ID: 11, Name: "ZTF-Cam", TNSID: 196}
	sess.instruments[12] = &instrdomain.Instrument{ID: 12, Name: "SEDM", TNSID: 149}
	wire := newFakeWire()
	notifier := &fakeNotifier{}
	svc := NewSubmissionService(fakeDB{sess: sess}, vault, wire, notifier, nil)
	return svc, sess, wire, notifier
}

func seedDiscovery(sess *fakeSession) {
	sess.objs["ZTF24aaa"] = &sourcedomain.Obj{ID: "ZTF24aaa", RA: 120.5, Dec: -33.25, InternalKey: "key-1"}
	sess.photometry = []sourcedomain.Photometry{
		{ObjID: "ZTF24aaa", InstrumentID: 11, MJD: 60310.0, LimitingMag: ptr(20.5), Filter: "sdssr", Origin: "ZTF"},
		{ObjID: "ZTF24aaa", InstrumentID: 11, MJD: 60311.0, Mag: ptr(18.4), MagErr: ptr(0.1), Filter: "sdssr", Origin: "ZTF"},
		{ObjID: "ZTF24aaa", InstrumentID: 11, MJD: 60312.0, Mag: ptr(18.1), Filter: "sdssg", Origin: "ZTF"},
	}
}

func reportJSON(t *testing.T, report any) string {
	t.Helper()
	b, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	return string(b)
}

func TestSubmitObjectFilesDiscoveryReport(t *testing.T) {
	svc, sess, wire, notifier := submissionFixture(t)
	seedDiscovery(sess)

	id, err := svc.SubmitObject(context.Background(), 1, "ZTF24aaa", "A. Reporter", false, "")
	if err != nil {
		t.Fatalf("SubmitObject: %v", err)
	}
	if id != 4242 {
		t.Errorf("report id = %d", id)
	}
	if len(wire.reports) != 1 {
		t.Fatalf("reports = %d", len(wire.reports))
	}
	got := reportJSON(t, wire.reports[0])
	for _, want := range []string{
		`"at_report"`,
		`"reporter":"A. Reporter"`,
		`"internal_name":"ZTF24aaa"`,
		`"at_type":"1"`,
		`"reporting_group_id":55`,
		`"filter_value":"22"`,
		`"instrument_value":"196"`,
		`"flux":"18.4"`,
		`"limiting_flux":"20.5"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %s:\n%s", want, got)
		}
	}
	if len(notifier.events) != 1 {
		t.Errorf("events = %+v", notifier.events)
	}
}

func TestSubmitObjectArchival(t *testing.T) {
	svc, sess, wire, _ := submissionFixture(t)
	seedDiscovery(sess)
	// drop the non-detection so only the archival path is possible
	sess.photometry = sess.photometry[1:]

	if _, err := svc.SubmitObject(context.Background(), 1, "ZTF24aaa", "A. Reporter", false, ""); !errors.Is(err, ErrNoNonDetection) {
		t.Fatalf("err = %v, want ErrNoNonDetection", err)
	}

	if _, err := svc.SubmitObject(context.Background(), 1, "ZTF24aaa", "A. Reporter", true, ""); !errors.Is(err, ErrArchivalComment) {
		t.Fatalf("err = %v, want ErrArchivalComment", err)
	}

	if _, err := svc.SubmitObject(context.Background(), 1, "ZTF24aaa", "A. Reporter", true, "no prior coverage"); err != nil {
		t.Fatalf("archival SubmitObject: %v", err)
	}
	got := reportJSON(t, wire.reports[len(wire.reports)-1])
	if !strings.Contains(got, `"archiveid":"0"`) || !strings.Contains(got, `"archival_remarks":"no prior coverage"`) {
		t.Errorf("archival block missing:\n%s", got)
	}
}

func TestSubmitObjectSentinels(t *testing.T) {
	svc, sess, _, _ := submissionFixture(t)
	sess.objs["empty"] = &sourcedomain.Obj{ID: "empty", InternalKey: "k"}

	if _, err := svc.SubmitObject(context.Background(), 9, "empty", "r", false, ""); !errors.Is(err, ErrNoRobot) {
		t.Fatalf("err = %v, want ErrNoRobot", err)
	}
	if _, err := svc.SubmitObject(context.Background(), 1, "nope", "r", false, ""); !errors.Is(err, ErrNoObject) {
		t.Fatalf("err = %v, want ErrNoObject", err)
	}
	if _, err := svc.SubmitObject(context.Background(), 1, "empty", "r", false, ""); !errors.Is(err, ErrNoDetections) {
		t.Fatalf("err = %v, want ErrNoDetections", err)
	}
}

func seedSpectrum(sess *fakeSession, specType string) {
	sess.objs["ZTF24aaa"] = &sourcedomain.Obj{ID: "ZTF24aaa", RA: 120.5, Dec: -33.25, TNSName: "SN 2024abc", InternalKey: "key-1"}
	sess.spectra = append(sess.spectra, &sourcedomain.Spectrum{
		ID:              7,
		ObjID:           "ZTF24aaa",
		InstrumentID:    12,
		ObservedAt:      time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC),
		Wavelengths:     []float64{4000, 4001},
		Fluxes:          []float64{1.25, 1.3},
		Errors:          []float64{0.02, 0.03},
		Type:            specType,
		Altdata:         map[string]any{"EXPTIME": 1800.0},
		Observers:       []string{"J. Observer"},
		ExternalReducer: "R. Reducer",
	})
}

func TestSubmitSpectrumUploadsAndReports(t *testing.T) {
	svc, sess, wire, _ := submissionFixture(t)
	seedSpectrum(sess, "object")

	id, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{
		RobotID:         1,
		SpectrumID:      7,
		Classifier:      "C. Classifier",
		SpectrumComment: "host-subtracted",
	})
	if err != nil {
		t.Fatalf("SubmitSpectrum: %v", err)
	}
	if id != 4242 {
		t.Errorf("report id = %d", id)
	}

	if len(wire.uploads) != 1 {
		t.Fatalf("uploads = %d", len(wire.uploads))
	}
	var filename string
	var content []byte
	for name, c := range wire.uploads {
		filename, content = name, c
	}
	if !strings.HasPrefix(filename, "ZTF24aaa_20240105_") || !strings.HasSuffix(filename, ".ascii") {
		t.Errorf("filename = %q", filename)
	}
	if got := string(content); got != "4000\t1.25\t0.02\n4001\t1.3\t0.03\n" {
		t.Errorf("artifact = %q", got)
	}

	got := reportJSON(t, wire.reports[0])
	for _, want := range []string{
		`"classification_report"`,
		`"name":"2024abc"`,
		`"classifier":"C. Classifier"`,
		`"groupid":55`,
		`"remarks":"host-subtracted"`,
		`"spectra-group"`,
		`"obsdate":"2024-01-05 08:30:00"`,
		`"instrumentid":149`,
		`"exptime":"1800"`,
		`"observer":"J. Observer"`,
		`"reducer":"R. Reducer"`,
		`"spectypeid":"1"`,
		`"spec_proprietary_period_value":0`,
		`"spec_proprietary_period_units":"years"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %s:\n%s", want, got)
		}
	}
	if !strings.Contains(got, `"ascii_file":"`+filename+`"`) {
		t.Errorf("report does not reference uploaded file:\n%s", got)
	}
}

func TestSubmitSpectrumClassificationFields(t *testing.T) {
	svc, sess, wire, _ := submissionFixture(t)
	seedSpectrum(sess, "object")
	sess.objs["ZTF24aaa"].Redshift = ptr(0.034)

	_, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{
		RobotID:               1,
		SpectrumID:            7,
		Classifier:            "C. Classifier",
		ClassificationID:      "3",
		SpectrumType:          "synthetic",
		SpectrumComment:       "host-subtracted",
		ClassificationComment: "matches SN Ia at peak",
	})
	if err != nil {
		t.Fatalf("SubmitSpectrum: %v", err)
	}

	got := reportJSON(t, wire.reports[0])
	for _, want := range []string{
		`"objtypeid":"3"`,
		`"redshift":0.034`,
		`"spectypeid":"5"`,
		`"remarks":"matches SN Ia at peak"`,
		`"remarks":"host-subtracted"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %s:\n%s", want, got)
		}
	}
}

func TestSubmitSpectrumOmitsUnsetClassificationFields(t *testing.T) {
	svc, sess, wire, _ := submissionFixture(t)
	seedSpectrum(sess, "object")

	if _, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{
		RobotID: 1, SpectrumID: 7, Classifier: "c",
	}); err != nil {
		t.Fatalf("SubmitSpectrum: %v", err)
	}

	got := reportJSON(t, wire.reports[0])
	for _, absent := range []string{`"objtypeid"`, `"redshift"`, `"remarks"`} {
		if strings.Contains(got, absent) {
			t.Errorf("report carries %s without input:\n%s", absent, got)
		}
	}
	if !strings.Contains(got, `"spectypeid":"1"`) {
		t.Errorf("stored spectrum type not used:\n%s", got)
	}
}

func TestSubmitSpectrumValidatesTypeBeforeUpload(t *testing.T) {
	svc, sess, wire, _ := submissionFixture(t)
	seedSpectrum(sess, "galaxy")

	_, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{RobotID: 1, SpectrumID: 7, Classifier: "c"})
	if err == nil || !strings.Contains(err.Error(), "invalid spectrum type") {
		t.Fatalf("err = %v", err)
	}
	if len(wire.uploads) != 0 || len(wire.reports) != 0 {
		t.Error("wire touched despite invalid spectrum type")
	}
}

func TestSubmitSpectrumResolvesMissingName(t *testing.T) {
	svc, sess, wire, _ := submissionFixture(t)
	seedSpectrum(sess, "object")
	sess.objs["ZTF24aaa"].TNSName = ""
	wire.resolved["120.5"] = "2024abc"

	if _, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{RobotID: 1, SpectrumID: 7, Classifier: "c"}); err != nil {
		t.Fatalf("SubmitSpectrum: %v", err)
	}
	if !strings.Contains(reportJSON(t, wire.reports[0]), `"name":"2024abc"`) {
		t.Error("resolved name not used in report")
	}
}

func TestSubmitSpectrumNotOnTNS(t *testing.T) {
	svc, sess, _, _ := submissionFixture(t)
	seedSpectrum(sess, "object")
	sess.objs["ZTF24aaa"].TNSName = ""

	_, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{RobotID: 1, SpectrumID: 7, Classifier: "c"})
	if !errors.Is(err, ErrNotOnTNS) {
		t.Fatalf("err = %v, want ErrNotOnTNS", err)
	}
}

func TestSubmitSpectrumMissing(t *testing.T) {
	svc, _, _, _ := submissionFixture(t)
	_, err := svc.SubmitSpectrum(context.Background(), SpectrumSubmission{RobotID: 1, SpectrumID: 99, Classifier: "c"})
	if !errors.Is(err, ErrNoSpectrum) {
		t.Fatalf("err = %v, want ErrNoSpectrum", err)
	}
}
