package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	instrdomain "transient-broker/backend/internal/instrument/domain"
	"transient-broker/backend/internal/notify"
	"transient-broker/backend/internal/security"
	sourcedomain "transient-broker/backend/internal/source/domain"
	"transient-broker/backend/internal/tns"
	robotdomain "transient-broker/backend/internal/tnsrobot/domain"
)

// fakeSession is an in-memory Session. Writes become visible immediately;
// commits and rollbacks are only recorded so tests can assert on the
// transaction boundary.
type fakeSession struct {
	robots      map[int64]*robotdomain.Robot
	objs        map[string]*sourcedomain.Obj
	instruments map[int64]*instrdomain.Instrument
	userGroups  map[int64][]int64

	photometry []sourcedomain.Photometry
	spectra    []*sourcedomain.Spectrum
	nextSpecID int64

	sharedWith       map[string][]int64 // obj id -> group ids from CreateSource
	photometryGroups [][]int64          // group ids from each AddPhotometry call
	spectrumGroups   [][]int64          // group ids from each AddSpectrum call
	commits          int
	rollbacks        int

	createSourceErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		robots:      map[int64]*robotdomain.Robot{},
		objs:        map[string]*sourcedomain.Obj{},
		instruments: map[int64]*instrdomain.Instrument{},
		userGroups:  map[int64][]int64{},
		sharedWith:  map[string][]int64{},
		nextSpecID:  1,
	}
}

func (f *fakeSession) Commit(context.Context) error { f.commits++; return nil }
func (f *fakeSession) Rollback(context.Context)     { f.rollbacks++ }

func (f *fakeSession) RobotByID(_ context.Context, id int64) (*robotdomain.Robot, error) {
	return f.robots[id], nil
}

func (f *fakeSession) AccessibleGroupIDs(_ context.Context, userID int64) ([]int64, error) {
	return f.userGroups[userID], nil
}

func (f *fakeSession) ObjByID(_ context.Context, id string) (*sourcedomain.Obj, error) {
	return f.objs[id], nil
}

func (f *fakeSession) CreateSource(_ context.Context, obj *sourcedomain.Obj, groupIDs []int64) error {
	if f.createSourceErr != nil {
		return f.createSourceErr
	}
	f.objs[obj.ID] = obj
	f.sharedWith[obj.ID] = groupIDs
	return nil
}

func (f *fakeSession) SetObjTNSName(_ context.Context, objID, tnsName string) error {
	f.objs[objID].TNSName = tnsName
	return nil
}

func (f *fakeSession) SetObjTNSInfo(_ context.Context, objID string, info json.RawMessage) error {
	f.objs[objID].TNSInfo = info
	return nil
}

func (f *fakeSession) InstrumentByID(_ context.Context, id int64) (*instrdomain.Instrument, error) {
	return f.instruments[id], nil
}

func (f *fakeSession) InstrumentByName(_ context.Context, name string) (*instrdomain.Instrument, error) {
	for _, inst := range f.instruments {
		if strings.EqualFold(inst.Name, name) {
			return inst, nil
		}
	}
	return nil, nil
}

func (f *fakeSession) AddPhotometry(_ context.Context, rows []sourcedomain.Photometry, groupIDs []int64) (int, error) {
	f.photometryGroups = append(f.photometryGroups, groupIDs)
	inserted := 0
	for _, r := range rows {
		if f.hasPhotometry(r) {
			continue
		}
		f.photometry = append(f.photometry, r)
		inserted++
	}
	return inserted, nil
}

func (f *fakeSession) hasPhotometry(r sourcedomain.Photometry) bool {
	for _, p := range f.photometry {
		if p.ObjID == r.ObjID && p.InstrumentID == r.InstrumentID &&
			p.MJD == r.MJD && p.Filter == r.Filter && p.Origin == r.Origin {
			return true
		}
	}
	return false
}

func (f *fakeSession) DetectionsForObj(_ context.Context, objID string) ([]sourcedomain.Photometry, error) {
	var out []sourcedomain.Photometry
	for _, p := range f.photometry {
		if p.ObjID == objID && p.Mag != nil {
			out = append(out, p)
		}
	}
	// most recent first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].MJD > out[i].MJD {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeSession) LastNonDetectionBefore(_ context.Context, objID string, mjd float64) (*sourcedomain.Photometry, error) {
	var best *sourcedomain.Photometry
	for i := range f.photometry {
		p := &f.photometry[i]
		if p.ObjID == objID && p.Mag == nil && p.LimitingMag != nil && p.MJD < mjd {
			if best == nil || p.MJD > best.MJD {
				best = p
			}
		}
	}
	return best, nil
}

func (f *fakeSession) AddSpectrum(_ context.Context, sp *sourcedomain.Spectrum, groupIDs []int64) error {
	f.spectrumGroups = append(f.spectrumGroups, groupIDs)
	sp.ID = f.nextSpecID
	f.nextSpecID++
	f.spectra = append(f.spectra, sp)
	return nil
}

func (f *fakeSession) SpectrumByID(_ context.Context, id int64) (*sourcedomain.Spectrum, error) {
	for _, sp := range f.spectra {
		if sp.ID == id {
			return sp, nil
		}
	}
	return nil, nil
}

type fakeDB struct {
	sess *fakeSession
}

func (d fakeDB) Begin(context.Context) (Session, error) { return d.sess, nil }

// fakeWire scripts TNS responses and records outbound calls.
type fakeWire struct {
	searchResults []tns.SearchResult
	searchErr     error
	resolved      map[string]string // "<ra>" -> name; empty map means every resolve misses
	objects       map[string]*tns.ObjectReply
	fetchErrs     map[string]error

	uploads  map[string][]byte
	reports  []any
	reportID int64
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		resolved:  map[string]string{},
		objects:   map[string]*tns.ObjectReply{},
		fetchErrs: map[string]error{},
		uploads:   map[string][]byte{},
		reportID:  4242,
	}
}

func (w *fakeWire) SearchRecent(_ context.Context, _ string, _ tns.Marker, _ time.Time) ([]tns.SearchResult, error) {
	return w.searchResults, w.searchErr
}

func (w *fakeWire) ResolveName(_ context.Context, _ string, _ tns.Marker, q tns.ResolveQuery) (string, string, error) {
	key := q.ObjName
	if key == "" {
		key = fmt.Sprintf("%g", q.RA)
	}
	name := w.resolved[key]
	if name == "" {
		return "", "", nil
	}
	return "AT", name, nil
}

func (w *fakeWire) FetchObject(_ context.Context, _ string, _ tns.Marker, tnsName string, wantPhotometry, wantSpectra bool) (*tns.ObjectReply, error) {
	if err := w.fetchErrs[tnsName]; err != nil {
		return nil, err
	}
	reply := w.objects[tnsName]
	if reply == nil {
		return nil, nil
	}
	trimmed := *reply
	if !wantPhotometry {
		trimmed.Photometry = nil
	}
	if !wantSpectra {
		trimmed.Spectra = nil
	}
	return &trimmed, nil
}

func (w *fakeWire) UploadFile(_ context.Context, _ string, _ tns.Marker, filename string, content []byte, _ string) error {
	w.uploads[filename] = bytes.Clone(content)
	return nil
}

func (w *fakeWire) BulkReport(_ context.Context, _ string, _ tns.Marker, report any) (int64, error) {
	w.reports = append(w.reports, report)
	return w.reportID, nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (n *fakeNotifier) Publish(_ context.Context, ev notify.Event) {
	n.events = append(n.events, ev)
}

func testVault(t *testing.T) *security.CredentialVault {
	t.Helper()
	enc, err := security.NewEncryptor(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	return security.NewCredentialVault(enc)
}

func sealCreds(t *testing.T, vault *security.CredentialVault, creds map[string]string) string {
	t.Helper()
	envelope, err := vault.Store(creds)
	if err != nil {
		t.Fatalf("seal credentials: %v", err)
	}
	return envelope
}

func testRobot(t *testing.T, vault *security.CredentialVault) *robotdomain.Robot {
	t.Helper()
	return &robotdomain.Robot{
		ID:            1,
		GroupID:       10,
		BotName:       "broker_bot",
		BotID:         1234,
		SourceGroupID: 55,
		Altdata:       sealCreds(t, vault, map[string]string{security.APIKeyField: "secret"}),
	}
}

func ptr(v float64) *float64 { return &v }
