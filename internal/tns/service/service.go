// Package service orchestrates TNS retrieval and submission: it owns the
// transaction boundaries, credential handling, and the translation between
// broker entities and the TNS wire format.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	instrdomain "transient-broker/backend/internal/instrument/domain"
	"transient-broker/backend/internal/security"
	sourcedomain "transient-broker/backend/internal/source/domain"
	"transient-broker/backend/internal/store"
	"transient-broker/backend/internal/tns"
	robotdomain "transient-broker/backend/internal/tnsrobot/domain"
)

// Sentinel errors; handlers map them to HTTP statuses.
var (
	ErrNoRobot       = errors.New("TNS robot not found")
	ErrNoObject      = errors.New("source not found")
	ErrNoSpectrum    = errors.New("spectrum not found")
	ErrMissingAPIKey = errors.New("TNS robot has no API credentials")
	ErrNotOnTNS      = errors.New("object is not registered on TNS")
	ErrNoDetections  = errors.New("source has no detections to report")
)

// Session is the slice of the store session the TNS services need. Implemented
// by *store.Session; tests substitute in-memory fakes.
type Session interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)

	RobotByID(ctx context.Context, id int64) (*robotdomain.Robot, error)
	AccessibleGroupIDs(ctx context.Context, userID int64) ([]int64, error)
	ObjByID(ctx context.Context, id string) (*sourcedomain.Obj, error)
	CreateSource(ctx context.Context, obj *sourcedomain.Obj, groupIDs []int64) error
	SetObjTNSName(ctx context.Context, objID, tnsName string) error
	SetObjTNSInfo(ctx context.Context, objID string, info json.RawMessage) error
	InstrumentByID(ctx context.Context, id int64) (*instrdomain.Instrument, error)
	InstrumentByName(ctx context.Context, name string) (*instrdomain.Instrument, error)
	AddPhotometry(ctx context.Context, rows []sourcedomain.Photometry, groupIDs []int64) (int, error)
	DetectionsForObj(ctx context.Context, objID string) ([]sourcedomain.Photometry, error)
	LastNonDetectionBefore(ctx context.Context, objID string, mjd float64) (*sourcedomain.Photometry, error)
	AddSpectrum(ctx context.Context, sp *sourcedomain.Spectrum, groupIDs []int64) error
	SpectrumByID(ctx context.Context, id int64) (*sourcedomain.Spectrum, error)
}

// Database opens sessions. Implemented by StoreDatabase in production.
type Database interface {
	Begin(ctx context.Context) (Session, error)
}

// StoreDatabase adapts the Postgres session factory to the Database interface.
type StoreDatabase struct {
	DB *store.DB
}

func (d StoreDatabase) Begin(ctx context.Context) (Session, error) {
	return d.DB.Begin(ctx)
}

// WireClient is the slice of the TNS wire client the services use. Implemented
// by *tns.Client.
type WireClient interface {
	SearchRecent(ctx context.Context, apiKey string, marker tns.Marker, since time.Time) ([]tns.SearchResult, error)
	ResolveName(ctx context.Context, apiKey string, marker tns.Marker, q tns.ResolveQuery) (prefix, name string, err error)
	FetchObject(ctx context.Context, apiKey string, marker tns.Marker, tnsName string, wantPhotometry, wantSpectra bool) (*tns.ObjectReply, error)
	UploadFile(ctx context.Context, apiKey string, marker tns.Marker, filename string, content []byte, contentType string) error
	BulkReport(ctx context.Context, apiKey string, marker tns.Marker, report any) (int64, error)
}

func marker(r *robotdomain.Robot) tns.Marker {
	return tns.Marker{BotID: r.BotID, BotName: r.BotName}
}

// loadRobot resolves a robot and its unsealed API key. Shared by the retrieval
// and submission services.
func loadRobot(ctx context.Context, sess Session, vault *security.CredentialVault, robotID int64) (*robotdomain.Robot, string, error) {
	robot, err := sess.RobotByID(ctx, robotID)
	if err != nil {
		return nil, "", err
	}
	if robot == nil {
		return nil, "", ErrNoRobot
	}
	creds, err := vault.Load(robot.Altdata)
	if err != nil {
		return nil, "", err
	}
	if !security.Usable(creds) {
		return nil, "", ErrMissingAPIKey
	}
	return robot, creds[security.APIKeyField], nil
}
