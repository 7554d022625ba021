package domain

import "testing"

func validRobot() *Robot {
	return &Robot{GroupID: 1, BotName: "bot", BotID: 10, SourceGroupID: 20}
}

func TestValidate(t *testing.T) {
	if err := validRobot().Validate(); err != nil {
		t.Fatalf("valid robot rejected: %v", err)
	}

	r := validRobot()
	r.BotName = ""
	if err := r.Validate(); err == nil {
		t.Error("empty bot_name should be rejected")
	}

	r = validRobot()
	r.GroupID = 0
	if err := r.Validate(); err == nil {
		t.Error("missing group_id should be rejected")
	}
}

func TestCheckAutoReport(t *testing.T) {
	if err := CheckAutoReport(nil, ""); err != nil {
		t.Errorf("no auto-report groups, no reporters: %v", err)
	}
	if err := CheckAutoReport([]int64{1}, "A. Observer on behalf of the survey"); err != nil {
		t.Errorf("groups with reporters: %v", err)
	}
	if err := CheckAutoReport([]int64{1, 2}, ""); err == nil {
		t.Error("auto-report groups without reporters should be rejected")
	}
}
