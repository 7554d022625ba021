package domain

import (
	"errors"
	"time"
)

// Robot is a named TNS bot identity owned by one broker group. Altdata is the
// encrypted credential envelope; it is decrypted only through the credential vault
// and never serialized into API responses.
type Robot struct {
	ID                 int64
	GroupID            int64
	BotName            string
	BotID              int
	SourceGroupID      int
	Altdata            string
	AutoReportGroupIDs []int64
	AutoReporters      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate validates the robot for persistence.
func (r *Robot) Validate() error {
	if r.GroupID == 0 {
		return errors.New("group_id is required")
	}
	if r.BotName == "" {
		return errors.New("bot_name must be a non-empty string")
	}
	if r.BotID == 0 {
		return errors.New("bot_id is required")
	}
	if r.SourceGroupID == 0 {
		return errors.New("source_group_id is required")
	}
	return CheckAutoReport(r.AutoReportGroupIDs, r.AutoReporters)
}

// CheckAutoReport enforces the auto-reporting invariant: a non-empty auto-report
// group list requires a non-empty reporter-attribution string.
func CheckAutoReport(groupIDs []int64, reporters string) error {
	if len(groupIDs) > 0 && reporters == "" {
		return errors.New("auto_reporters must be a non-empty string when auto report group IDs are specified")
	}
	return nil
}
