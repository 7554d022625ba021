package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	robotdomain "transient-broker/backend/internal/tnsrobot/domain"
)

const robotColumns = `id, group_id, bot_name, bot_id, source_group_id,
	COALESCE(altdata, ''), COALESCE(auto_report_group_ids, '{}'),
	COALESCE(auto_reporters, ''), created_at, updated_at`

func scanRobot(row pgx.Row) (*robotdomain.Robot, error) {
	var r robotdomain.Robot
	err := row.Scan(&r.ID, &r.GroupID, &r.BotName, &r.BotID, &r.SourceGroupID,
		&r.Altdata, &r.AutoReportGroupIDs, &r.AutoReporters, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RobotByID returns the robot for id, or nil if not found.
func (s *Session) RobotByID(ctx context.Context, id int64) (*robotdomain.Robot, error) {
	r, err := scanRobot(s.tx.QueryRow(ctx,
		`SELECT `+robotColumns+` FROM tns_robots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRobots returns robots owned by any of the given groups, ordered by ID.
func (s *Session) ListRobots(ctx context.Context, groupIDs []int64) ([]*robotdomain.Robot, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT `+robotColumns+` FROM tns_robots WHERE group_id = ANY($1) ORDER BY id`, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var robots []*robotdomain.Robot
	for rows.Next() {
		r, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		robots = append(robots, r)
	}
	return robots, rows.Err()
}

// RobotsWithAutoReport returns every robot configured for automatic reporting.
// Used by the syncer to decide which robots drive periodic retrieval.
func (s *Session) RobotsWithAutoReport(ctx context.Context) ([]*robotdomain.Robot, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT `+robotColumns+` FROM tns_robots
		 WHERE auto_report_group_ids IS NOT NULL AND cardinality(auto_report_group_ids) > 0
		 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var robots []*robotdomain.Robot
	for rows.Next() {
		r, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		robots = append(robots, r)
	}
	return robots, rows.Err()
}

// CreateRobot inserts a robot and returns its assigned ID.
func (s *Session) CreateRobot(ctx context.Context, r *robotdomain.Robot) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx,
		`INSERT INTO tns_robots (group_id, bot_name, bot_id, source_group_id, altdata,
		                         auto_report_group_ids, auto_reporters)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''))
		 RETURNING id`,
		r.GroupID, r.BotName, r.BotID, r.SourceGroupID, r.Altdata,
		r.AutoReportGroupIDs, r.AutoReporters,
	).Scan(&id)
	return id, err
}

// UpdateRobot persists all mutable fields of the robot.
func (s *Session) UpdateRobot(ctx context.Context, r *robotdomain.Robot) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE tns_robots
		 SET group_id = $2, bot_name = $3, bot_id = $4, source_group_id = $5,
		     altdata = NULLIF($6, ''), auto_report_group_ids = $7,
		     auto_reporters = NULLIF($8, ''), updated_at = now()
		 WHERE id = $1`,
		r.ID, r.GroupID, r.BotName, r.BotID, r.SourceGroupID, r.Altdata,
		r.AutoReportGroupIDs, r.AutoReporters)
	return err
}

// DeleteRobot removes the robot. Returns nil even when no row matched; callers
// resolve existence beforehand for their error messages.
func (s *Session) DeleteRobot(ctx context.Context, id int64) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM tns_robots WHERE id = $1`, id)
	return err
}
