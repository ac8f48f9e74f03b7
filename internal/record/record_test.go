package record

import "testing"

func TestCapabilitiesFor(t *testing.T) {
	cases := []struct {
		condition string
		hasState  bool
		hasRepair bool
	}{
		{"A0", false, false},
		{"A1", true, false},
		{"A2", false, true},
		{"A3", true, true},
	}
	for _, tc := range cases {
		caps, ok := CapabilitiesFor(tc.condition)
		if !ok {
			t.Fatalf("%s: expected known condition", tc.condition)
		}
		if caps.HasState != tc.hasState || caps.HasVerifyRepair != tc.hasRepair {
			t.Errorf("%s: got %+v", tc.condition, caps)
		}
	}

	if _, ok := CapabilitiesFor("B1"); ok {
		t.Error("expected unknown condition to be rejected")
	}
}

func TestHasCriticalIssue(t *testing.T) {
	issues := []Issue{
		{ID: "a", Severity: SeverityMinor},
		{ID: "b", Severity: SeverityMajor},
	}
	if HasCriticalIssue(issues) {
		t.Error("expected no critical issue")
	}
	issues = append(issues, Issue{ID: "c", Severity: SeverityCritical})
	if !HasCriticalIssue(issues) {
		t.Error("expected critical issue detected")
	}
}

func TestAllChecksPassed(t *testing.T) {
	checks := []HardCheckResult{{ID: "a", Passed: true}}
	if !AllChecksPassed(checks) {
		t.Error("expected all passed")
	}
	checks = append(checks, HardCheckResult{ID: "b", Passed: false})
	if AllChecksPassed(checks) {
		t.Error("expected failure detected")
	}
	if !AllChecksPassed(nil) {
		t.Error("expected vacuous pass for no checks")
	}
}

func TestUsageAdd(t *testing.T) {
	var u Usage
	u.Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	if u.PromptTokens != 11 || u.CompletionTokens != 22 || u.TotalTokens != 33 {
		t.Errorf("unexpected sum: %+v", u)
	}
}

func TestTimingsAddStage(t *testing.T) {
	var tm Timings
	tm.AddStage("verify", 10)
	tm.AddStage("verify", 5)
	if tm.Stages["verify"] != 15 {
		t.Errorf("expected accumulated stage time, got %d", tm.Stages["verify"])
	}
}

func TestRunRecordKey(t *testing.T) {
	r := RunRecord{RunID: "r1", SampleID: "s1:0", Condition: "A2"}
	if r.Key() != "r1:s1:0:A2" {
		t.Errorf("unexpected key %q", r.Key())
	}
}
