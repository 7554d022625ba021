package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"transient-broker/backend/internal/notify"
	"transient-broker/backend/internal/security"
	sourcedomain "transient-broker/backend/internal/source/domain"
	"transient-broker/backend/internal/tns"
)

// Submission validation errors.
var (
	ErrArchivalComment = errors.New("archival submission requires an archival comment")
	ErrNoNonDetection  = errors.New("source has no non-detection before discovery; submit as archival")
)

// SubmissionService pushes broker data to TNS: discovery (AT) reports and
// classification spectra.
type SubmissionService struct {
	db       Database
	vault    *security.CredentialVault
	client   WireClient
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewSubmissionService wires a submission service.
func NewSubmissionService(db Database, vault *security.CredentialVault, client WireClient, notifier notify.Notifier, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{db: db, vault: vault, client: client, notifier: notifier, logger: logger}
}

// SubmitObject files a discovery report for the source with the robot's bot
// identity and returns the TNS report ID. The report anchors on the earliest
// detection; non-archival reports additionally require a prior non-detection.
func (s *SubmissionService) SubmitObject(ctx context.Context, robotID int64, objID, reporters string, archival bool, archivalComment string) (int64, error) {
	if archival && strings.TrimSpace(archivalComment) == "" {
		return 0, ErrArchivalComment
	}

	sess, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Rollback(ctx)

	robot, apiKey, err := loadRobot(ctx, sess, s.vault, robotID)
	if err != nil {
		return 0, err
	}
	obj, err := sess.ObjByID(ctx, objID)
	if err != nil {
		return 0, err
	}
	if obj == nil {
		return 0, ErrNoObject
	}

	detections, err := sess.DetectionsForObj(ctx, objID)
	if err != nil {
		return 0, err
	}
	if len(detections) == 0 {
		return 0, ErrNoDetections
	}
	discovery := detections[len(detections)-1] // rows come most recent first

	discPhot, err := s.reportPhotometry(ctx, sess, discovery)
	if err != nil {
		return 0, err
	}

	var nonDet *tns.NonDetection
	if archival {
		nonDet = tns.ArchivalNonDetection(archivalComment)
	} else {
		last, err := sess.LastNonDetectionBefore(ctx, objID, discovery.MJD)
		if err != nil {
			return 0, err
		}
		if last == nil {
			return 0, ErrNoNonDetection
		}
		if nonDet, err = s.nonDetection(ctx, sess, *last); err != nil {
			return 0, err
		}
	}

	report := tns.ATReport{
		RA:                    tns.ValueUnit{Value: strconv.FormatFloat(obj.RA, 'f', -1, 64), Units: "deg"},
		Dec:                   tns.ValueUnit{Value: strconv.FormatFloat(obj.Dec, 'f', -1, 64), Units: "deg"},
		ReportingGroupID:      robot.SourceGroupID,
		DiscoveryDataSourceID: robot.SourceGroupID,
		Reporter:              reporters,
		DiscoveryDatetime:     tns.MJDToObsDate(discovery.MJD),
		ATType:                "1",
		InternalName:          obj.ID,
		Photometry:            tns.PhotometryGroup(discPhot),
		NonDetection:          nonDet,
	}

	reportID, err := s.client.BulkReport(ctx, apiKey, marker(robot), tns.WrapATReport(report))
	if err != nil {
		return 0, err
	}
	s.logger.Info("filed TNS discovery report",
		zap.String("obj_id", objID),
		zap.Int64("robot_id", robotID),
		zap.Int64("report_id", reportID))
	s.notifier.Publish(ctx, notify.RefreshSource(obj.InternalKey))
	return reportID, nil
}

// SpectrumSubmission carries the inputs for a classification-report push.
// SpectrumType, when set, overrides the type stored on the spectrum record.
// SpectrumComment lands on the spectrum entry; ClassificationComment on the
// report itself.
type SpectrumSubmission struct {
	RobotID               int64
	SpectrumID            int64
	Classifier            string
	ClassificationID      string
	SpectrumType          string
	SpectrumComment       string
	ClassificationComment string
}

// SubmitSpectrum uploads the spectrum's data file and files a classification
// report referencing it, returning the TNS report ID. The spectrum type is
// validated against TNS's vocabulary before anything touches the wire.
func (s *SubmissionService) SubmitSpectrum(ctx context.Context, in SpectrumSubmission) (int64, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Rollback(ctx)

	robot, apiKey, err := loadRobot(ctx, sess, s.vault, in.RobotID)
	if err != nil {
		return 0, err
	}
	sp, err := sess.SpectrumByID(ctx, in.SpectrumID)
	if err != nil {
		return 0, err
	}
	if sp == nil {
		return 0, ErrNoSpectrum
	}
	obj, err := sess.ObjByID(ctx, sp.ObjID)
	if err != nil {
		return 0, err
	}
	if obj == nil {
		return 0, ErrNoObject
	}

	specType := sp.Type
	if in.SpectrumType != "" {
		specType = in.SpectrumType
	}
	specTypeID, err := tns.SpectrumTypeIndex(specType)
	if err != nil {
		return 0, err
	}
	inst, err := sess.InstrumentByID(ctx, sp.InstrumentID)
	if err != nil {
		return 0, err
	}
	if inst == nil || inst.TNSID == 0 {
		return 0, fmt.Errorf("instrument %d is not registered on TNS", sp.InstrumentID)
	}

	tnsName := bareTNSName(obj.TNSName)
	if tnsName == "" {
		_, name, err := s.client.ResolveName(ctx, apiKey, marker(robot), tns.ResolveQuery{RA: obj.RA, Dec: obj.Dec})
		if err != nil {
			return 0, err
		}
		if name == "" {
			return 0, ErrNotOnTNS
		}
		tnsName = name
	}

	filename := spectrumFilename(obj.ID, sp, inst.Name)
	if err := s.client.UploadFile(ctx, apiKey, marker(robot), filename, spectrumASCII(sp), "text/plain"); err != nil {
		return 0, err
	}

	report := tns.ClassificationReport{
		Name:       tnsName,
		Classifier: in.Classifier,
		ObjTypeID:  in.ClassificationID,
		Redshift:   obj.Redshift,
		GroupID:    robot.SourceGroupID,
		Remarks:    in.ClassificationComment,
		Spectra: tns.SpectraGroup(tns.ReportSpectrum{
			ObsDate:           sp.ObservedAt.UTC().Format("2006-01-02 15:04:05"),
			InstrumentID:      inst.TNSID,
			ExpTime:           exposureTime(sp),
			Observer:          people(sp.Observers, sp.ExternalObserver),
			Reducer:           people(sp.Reducers, sp.ExternalReducer),
			SpecTypeID:        strconv.Itoa(specTypeID),
			ASCIIFile:         filename,
			Remarks:           in.SpectrumComment,
			ProprietaryPeriod: tns.PublicProprietaryPeriod,
		}),
	}

	reportID, err := s.client.BulkReport(ctx, apiKey, marker(robot), tns.WrapClassificationReport(report))
	if err != nil {
		return 0, err
	}
	s.logger.Info("filed TNS classification report",
		zap.String("obj_id", obj.ID),
		zap.Int64("spectrum_id", in.SpectrumID),
		zap.Int64("report_id", reportID))
	return reportID, nil
}

// reportPhotometry renders one detection as a report photometry entry.
func (s *SubmissionService) reportPhotometry(ctx context.Context, sess Session, p sourcedomain.Photometry) (tns.ReportPhotometry, error) {
	instID, filterID, err := s.wireIDs(ctx, sess, p)
	if err != nil {
		return tns.ReportPhotometry{}, err
	}
	out := tns.ReportPhotometry{
		ObsDate:        tns.MJDToObsDate(p.MJD),
		Flux:           strconv.FormatFloat(*p.Mag, 'f', -1, 64),
		FluxUnitsValue: "1",
		FilterValue:    strconv.Itoa(filterID),
		InstrumentVal:  strconv.Itoa(instID),
	}
	if p.MagErr != nil {
		out.FluxErr = strconv.FormatFloat(*p.MagErr, 'f', -1, 64)
	}
	return out, nil
}

// nonDetection renders a limiting-magnitude row as the report's non-detection.
func (s *SubmissionService) nonDetection(ctx context.Context, sess Session, p sourcedomain.Photometry) (*tns.NonDetection, error) {
	instID, filterID, err := s.wireIDs(ctx, sess, p)
	if err != nil {
		return nil, err
	}
	return &tns.NonDetection{
		ObsDate:        tns.MJDToObsDate(p.MJD),
		LimitingFlux:   strconv.FormatFloat(*p.LimitingMag, 'f', -1, 64),
		FluxUnitsValue: "1",
		FilterValue:    strconv.Itoa(filterID),
		InstrumentVal:  strconv.Itoa(instID),
	}, nil
}

func (s *SubmissionService) wireIDs(ctx context.Context, sess Session, p sourcedomain.Photometry) (instTNSID int, filterID int, err error) {
	inst, err := sess.InstrumentByID(ctx, p.InstrumentID)
	if err != nil {
		return 0, 0, err
	}
	if inst == nil || inst.TNSID == 0 {
		return 0, 0, fmt.Errorf("instrument %d is not registered on TNS", p.InstrumentID)
	}
	filterID, err = tns.FilterTNSID(p.Filter)
	if err != nil {
		return 0, 0, err
	}
	return inst.TNSID, filterID, nil
}

// spectrumASCII renders the spectrum as the tab-separated file TNS expects.
func spectrumASCII(sp *sourcedomain.Spectrum) []byte {
	var b strings.Builder
	for i := range sp.Wavelengths {
		b.WriteString(strconv.FormatFloat(sp.Wavelengths[i], 'f', -1, 64))
		b.WriteByte('\t')
		b.WriteString(strconv.FormatFloat(sp.Fluxes[i], 'f', -1, 64))
		if len(sp.Errors) == len(sp.Wavelengths) {
			b.WriteByte('\t')
			b.WriteString(strconv.FormatFloat(sp.Errors[i], 'f', -1, 64))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func spectrumFilename(objID string, sp *sourcedomain.Spectrum, instrument string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return fmt.Sprintf("%s_%s_%s.ascii", clean(objID), sp.ObservedAt.UTC().Format("20060102"), clean(instrument))
}

// exposureTime pulls the EXPTIME header out of the spectrum's altdata, if any.
func exposureTime(sp *sourcedomain.Spectrum) string {
	switch v := sp.Altdata["EXPTIME"].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return ""
	}
}

func people(names []string, external string) string {
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return external
}
