package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"transient-broker/backend/internal/notify"
	"transient-broker/backend/internal/security"
	sourcedomain "transient-broker/backend/internal/source/domain"
	"transient-broker/backend/internal/tns"
	robotdomain "transient-broker/backend/internal/tnsrobot/domain"
)

// RetrievalService pulls TNS data into the broker: name resolution, cached
// object info, and imported photometry and spectra.
type RetrievalService struct {
	db       Database
	vault    *security.CredentialVault
	client   WireClient
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewRetrievalService wires a retrieval service.
func NewRetrievalService(db Database, vault *security.CredentialVault, client WireClient, notifier notify.Notifier, logger *zap.Logger) *RetrievalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalService{db: db, vault: vault, client: client, notifier: notifier, logger: logger}
}

// RetrievalResult summarizes one object retrieval. Skipped lists per-record
// translation failures; they never fail the retrieval as a whole.
type RetrievalResult struct {
	TNSName         string
	PhotometryAdded int
	SpectraAdded    int
	Skipped         []string
}

// BulkResult summarizes a bulk retrieval run.
type BulkResult struct {
	Processed int
	Created   []string
	Updated   []string
	Failed    []string
}

// RetrieveOne resolves the object's TNS name if needed, fetches its TNS record,
// and imports photometry and spectra when the corresponding flags are set.
// Imported rows are shared with the caller's accessible groups; a caller-less
// invocation (userID zero, the syncer) shares with the robot's owning group.
// When sess is nil the service owns the transaction: it commits on success and
// publishes a source refresh. A non-nil sess joins the caller's transaction and
// leaves commit and notification to it.
func (s *RetrievalService) RetrieveOne(ctx context.Context, userID, robotID int64, objID string, includePhotometry, includeSpectra bool, sess Session) (*RetrievalResult, error) {
	owned := sess == nil
	if owned {
		var err error
		if sess, err = s.db.Begin(ctx); err != nil {
			return nil, err
		}
		defer sess.Rollback(ctx)
	}

	robot, apiKey, err := loadRobot(ctx, sess, s.vault, robotID)
	if err != nil {
		return nil, err
	}
	obj, err := sess.ObjByID(ctx, objID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNoObject
	}

	tnsName := bareTNSName(obj.TNSName)
	if tnsName == "" {
		prefix, name, err := s.client.ResolveName(ctx, apiKey, marker(robot), tns.ResolveQuery{RA: obj.RA, Dec: obj.Dec})
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, ErrNotOnTNS
		}
		// Persist the resolved name right away so later runs skip the cone
		// search even if the fetch below fails. With an owned session that
		// means a separate committed transaction; a shared session keeps the
		// caller's commit boundary.
		obj.TNSName = strings.TrimSpace(prefix + " " + name)
		if owned {
			if err := s.commitName(ctx, obj.ID, obj.TNSName); err != nil {
				return nil, err
			}
		} else if err := sess.SetObjTNSName(ctx, obj.ID, obj.TNSName); err != nil {
			return nil, err
		}
		tnsName = name
	}

	reply, err := s.client.FetchObject(ctx, apiKey, marker(robot), tnsName, includePhotometry, includeSpectra)
	if err != nil {
		return nil, err
	}

	var result *RetrievalResult
	if reply == nil {
		// A 200 with an empty reply is success with nothing to do.
		result = &RetrievalResult{TNSName: obj.TNSName}
		s.logger.Info("TNS has no data for object",
			zap.String("obj_id", objID), zap.String("tns_name", tnsName))
	} else if result, err = s.ingest(ctx, sess, userID, robot, obj, reply); err != nil {
		return nil, err
	}

	if owned {
		if err := sess.Commit(ctx); err != nil {
			return nil, err
		}
		s.notifier.Publish(ctx, notify.RefreshSource(obj.InternalKey))
	}
	return result, nil
}

// BulkRetrieve searches TNS for objects made public since the given time and
// imports each of them, creating sources that do not exist locally yet. New
// sources are shared with groupIDs; an empty list defaults to the caller's
// accessible groups. Per-object wire failures are logged and skipped; a
// rate-limit exhaustion or any database failure aborts the batch.
func (s *RetrievalService) BulkRetrieve(ctx context.Context, userID, robotID int64, groupIDs []int64, since time.Time, includePhotometry, includeSpectra bool) (*BulkResult, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	robot, apiKey, err := loadRobot(ctx, sess, s.vault, robotID)
	if err != nil {
		return nil, err
	}
	if len(groupIDs) == 0 {
		if groupIDs, err = s.shareGroups(ctx, sess, userID, robot); err != nil {
			return nil, err
		}
	}

	matches, err := s.client.SearchRecent(ctx, apiKey, marker(robot), since)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no TNS objects made public since %s", since.UTC().Format(time.RFC3339))
	}

	res := &BulkResult{}
	var touched []string
	for _, m := range matches {
		res.Processed++
		reply, err := s.client.FetchObject(ctx, apiKey, marker(robot), m.ObjName, includePhotometry, includeSpectra)
		if err != nil {
			if errors.Is(err, tns.ErrRateExceeded) {
				return nil, err
			}
			s.logger.Warn("bulk retrieval: object fetch failed",
				zap.String("tns_name", m.ObjName), zap.Error(err))
			res.Failed = append(res.Failed, m.ObjName)
			continue
		}
		if reply == nil {
			// Listed by the search but carrying no data: nothing to do.
			s.logger.Info("TNS has no data for object", zap.String("tns_name", m.ObjName))
			continue
		}

		obj, err := sess.ObjByID(ctx, m.ObjName)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			obj = &sourcedomain.Obj{
				ID:          m.ObjName,
				RA:          reply.RADeg,
				Dec:         reply.DecDeg,
				Redshift:    reply.Redshift,
				InternalKey: uuid.NewString(),
			}
			if err := sess.CreateSource(ctx, obj, groupIDs); err != nil {
				return nil, fmt.Errorf("create source %s: %w", m.ObjName, err)
			}
			res.Created = append(res.Created, m.ObjName)
		} else {
			res.Updated = append(res.Updated, m.ObjName)
		}

		if _, err := s.ingest(ctx, sess, userID, robot, obj, reply); err != nil {
			return nil, fmt.Errorf("ingest %s: %w", m.ObjName, err)
		}
		touched = append(touched, obj.InternalKey)
	}

	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	for _, key := range touched {
		s.notifier.Publish(ctx, notify.RefreshSource(key))
	}
	s.logger.Info("bulk retrieval finished",
		zap.Int64("robot_id", robotID),
		zap.Int("processed", res.Processed),
		zap.Int("created", len(res.Created)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

// ingest writes one fetched TNS record into the session: the TNS name, the raw
// info snapshot, and translated photometry and spectra. Share groups are
// recomputed per phase so a membership change mid-import is honored for each.
func (s *RetrievalService) ingest(ctx context.Context, sess Session, userID int64, robot *robotdomain.Robot, obj *sourcedomain.Obj, reply *tns.ObjectReply) (*RetrievalResult, error) {
	fullName := strings.TrimSpace(reply.NamePrefix + " " + reply.ObjName)
	result := &RetrievalResult{TNSName: fullName}

	if obj.TNSName != fullName {
		if err := sess.SetObjTNSName(ctx, obj.ID, fullName); err != nil {
			return nil, err
		}
	}

	var rows []sourcedomain.Photometry
	for _, rec := range reply.Photometry {
		translated, _, err := tns.TranslatePhotometry(ctx, rec, sess)
		if err != nil {
			result.Skipped = append(result.Skipped, err.Error())
			continue
		}
		for i := range translated {
			translated[i].ObjID = obj.ID
		}
		rows = append(rows, translated...)
	}
	if len(rows) > 0 {
		groups, err := s.shareGroups(ctx, sess, userID, robot)
		if err != nil {
			return nil, err
		}
		n, err := sess.AddPhotometry(ctx, rows, groups)
		if err != nil {
			return nil, err
		}
		result.PhotometryAdded = n
	}

	for _, rec := range reply.Spectra {
		sp, err := tns.TranslateSpectrum(ctx, rec, sess)
		if err != nil {
			result.Skipped = append(result.Skipped, err.Error())
			continue
		}
		sp.ObjID = obj.ID
		groups, err := s.shareGroups(ctx, sess, userID, robot)
		if err != nil {
			return nil, err
		}
		if err := sess.AddSpectrum(ctx, sp, groups); err != nil {
			return nil, err
		}
		result.SpectraAdded++
	}

	if len(result.Skipped) > 0 {
		s.logger.Warn("TNS records failed translation",
			zap.String("obj_id", obj.ID),
			zap.Int("failed", len(result.Skipped)),
			zap.Int("total", len(reply.Photometry)+len(reply.Spectra)),
			zap.Strings("errors", dedupe(result.Skipped)))
	}

	if err := sess.SetObjTNSInfo(ctx, obj.ID, reply.Raw); err != nil {
		return nil, err
	}
	return result, nil
}

// shareGroups resolves the groups imported rows are shared with: the caller's
// accessible groups, or the robot's owning group when there is no caller (the
// syncer) or the caller belongs to no group.
func (s *RetrievalService) shareGroups(ctx context.Context, sess Session, userID int64, robot *robotdomain.Robot) ([]int64, error) {
	if userID != 0 {
		groups, err := sess.AccessibleGroupIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(groups) > 0 {
			return groups, nil
		}
	}
	return []int64{robot.GroupID}, nil
}

func (s *RetrievalService) commitName(ctx context.Context, objID, tnsName string) error {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.Rollback(ctx)
	if err := sess.SetObjTNSName(ctx, objID, tnsName); err != nil {
		return err
	}
	return sess.Commit(ctx)
}

// dedupe returns the sorted unique entries of msgs.
func dedupe(msgs []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range msgs {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// bareTNSName strips the classification prefix from a stored TNS name:
// "SN 2024abc" becomes "2024abc". The object APIs take the bare name.
func bareTNSName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
