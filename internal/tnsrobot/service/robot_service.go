// Package service implements TNS robot management: CRUD over bot identities
// with encrypted credential handling and group-scoped access.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"transient-broker/backend/internal/notify"
	"transient-broker/backend/internal/security"
	"transient-broker/backend/internal/store"
	robotdomain "transient-broker/backend/internal/tnsrobot/domain"
	userdomain "transient-broker/backend/internal/user/domain"
)

// Sentinel errors; handlers map them to HTTP statuses.
var (
	ErrNoUser        = errors.New("user not found")
	ErrRobotNotFound = errors.New("TNS robot not found")
	ErrForbidden     = errors.New("user does not have access to this robot's group")
	ErrInvalidInput  = errors.New("invalid robot")
)

// Session is the slice of the store session robot management needs.
type Session interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)

	UserByID(ctx context.Context, id int64) (*userdomain.User, error)
	AccessibleGroupIDs(ctx context.Context, userID int64) ([]int64, error)
	RobotByID(ctx context.Context, id int64) (*robotdomain.Robot, error)
	ListRobots(ctx context.Context, groupIDs []int64) ([]*robotdomain.Robot, error)
	CreateRobot(ctx context.Context, r *robotdomain.Robot) (int64, error)
	UpdateRobot(ctx context.Context, r *robotdomain.Robot) error
	DeleteRobot(ctx context.Context, id int64) error
}

// Database opens sessions.
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

// RobotService manages TNS robots. Credentials pass through the vault on the
// way in and never come back out.
type RobotService struct {
	db       Database
	vault    *security.CredentialVault
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewRobotService wires a robot service.
func NewRobotService(db Database, vault *security.CredentialVault, notifier notify.Notifier, logger *zap.Logger) *RobotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotService{db: db, vault: vault, notifier: notifier, logger: logger}
}

// CreateInput is the payload for creating a robot.
type CreateInput struct {
	GroupID            int64
	BotName            string
	BotID              int
	SourceGroupID      int
	Credentials        map[string]string
	AutoReportGroupIDs []int64
	AutoReporters      string
}

// UpdateInput is the payload for updating a robot. Nil fields keep the stored
// value; the auto-report invariant is checked against the merged state.
type UpdateInput struct {
	BotName            *string
	BotID              *int
	SourceGroupID      *int
	Credentials        map[string]string
	AutoReportGroupIDs *[]int64
	AutoReporters      *string
}

// List returns the robots of every group the user belongs to.
func (s *RobotService) List(ctx context.Context, userID int64) ([]*robotdomain.Robot, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	groupIDs, err := s.userGroups(ctx, sess, userID)
	if err != nil {
		return nil, err
	}
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return sess.ListRobots(ctx, groupIDs)
}

// Get returns one robot if the user belongs to its group.
func (s *RobotService) Get(ctx context.Context, userID, robotID int64) (*robotdomain.Robot, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)
	robot, _, err := s.accessibleRobot(ctx, sess, userID, robotID)
	return robot, err
}

// Create validates and persists a new robot, sealing its credentials.
func (s *RobotService) Create(ctx context.Context, userID int64, in CreateInput) (*robotdomain.Robot, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	groupIDs, err := s.userGroups(ctx, sess, userID)
	if err != nil {
		return nil, err
	}
	if !contains(groupIDs, in.GroupID) {
		return nil, ErrForbidden
	}

	robot := &robotdomain.Robot{
		GroupID:            in.GroupID,
		BotName:            in.BotName,
		BotID:              in.BotID,
		SourceGroupID:      in.SourceGroupID,
		AutoReportGroupIDs: in.AutoReportGroupIDs,
		AutoReporters:      in.AutoReporters,
	}
	if err := robot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if len(in.Credentials) > 0 {
		if robot.Altdata, err = s.vault.Store(in.Credentials); err != nil {
			return nil, err
		}
	}

	id, err := sess.CreateRobot(ctx, robot)
	if err != nil {
		return nil, err
	}
	robot.ID = id
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("created TNS robot",
		zap.Int64("robot_id", id), zap.Int64("group_id", robot.GroupID))
	s.notifier.Publish(ctx, notify.RefreshRobots(robot.GroupID))
	return robot, nil
}

// Update merges the input into the stored robot and persists it. The
// auto-report invariant is enforced on the merged state, so clearing reporters
// while group IDs remain configured is rejected.
func (s *RobotService) Update(ctx context.Context, userID, robotID int64, in UpdateInput) (*robotdomain.Robot, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	robot, _, err := s.accessibleRobot(ctx, sess, userID, robotID)
	if err != nil {
		return nil, err
	}

	if in.BotName != nil {
		robot.BotName = *in.BotName
	}
	if in.BotID != nil {
		robot.BotID = *in.BotID
	}
	if in.SourceGroupID != nil {
		robot.SourceGroupID = *in.SourceGroupID
	}
	if in.AutoReportGroupIDs != nil {
		robot.AutoReportGroupIDs = *in.AutoReportGroupIDs
	}
	if in.AutoReporters != nil {
		robot.AutoReporters = *in.AutoReporters
	}
	if err := robot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if len(in.Credentials) > 0 {
		if robot.Altdata, err = s.vault.Store(in.Credentials); err != nil {
			return nil, err
		}
	}

	if err := sess.UpdateRobot(ctx, robot); err != nil {
		return nil, err
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.RefreshRobots(robot.GroupID))
	return robot, nil
}

// Delete removes the robot.
func (s *RobotService) Delete(ctx context.Context, userID, robotID int64) error {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.Rollback(ctx)

	robot, _, err := s.accessibleRobot(ctx, sess, userID, robotID)
	if err != nil {
		return err
	}
	if err := sess.DeleteRobot(ctx, robotID); err != nil {
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("deleted TNS robot", zap.Int64("robot_id", robotID))
	s.notifier.Publish(ctx, notify.RefreshRobots(robot.GroupID))
	return nil
}

func (s *RobotService) userGroups(ctx context.Context, sess Session, userID int64) ([]int64, error) {
	user, err := sess.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoUser
	}
	return sess.AccessibleGroupIDs(ctx, userID)
}

func (s *RobotService) accessibleRobot(ctx context.Context, sess Session, userID, robotID int64) (*robotdomain.Robot, []int64, error) {
	groupIDs, err := s.userGroups(ctx, sess, userID)
	if err != nil {
		return nil, nil, err
	}
	robot, err := sess.RobotByID(ctx, robotID)
	if err != nil {
		return nil, nil, err
	}
	if robot == nil {
		return nil, nil, ErrRobotNotFound
	}
	if !contains(groupIDs, robot.GroupID) {
		return nil, nil, ErrForbidden
	}
	return robot, groupIDs, nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
