package domain

import "testing"

func TestIssueType_Penalty(t *testing.T) {
	tests := []struct {
		issue   IssueType
		penalty int
	}{
		{IssueHallucination, 25},
		{IssueContextLoss, 10},
		{IssueTemporalError, 10},
		{IssueAttributionError, 5},
		{IssueScopeError, 5},
		{IssueMissingCritical, 15},
		{IssueMissingImportant, 5},
		{IssueUnusableFormat, 3},
		{IssueType("OTHER"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.issue), func(t *testing.T) {
			if got := tt.issue.Penalty(); got != tt.penalty {
				t.Errorf("expected %d, got %d", tt.penalty, got)
			}
		})
	}
}

func TestParseIssueType(t *testing.T) {
	if ParseIssueType("context loss") != IssueContextLoss {
		t.Error("expected CONTEXT_LOSS")
	}
	if ParseIssueType("unusable-format") != IssueUnusableFormat {
		t.Error("expected UNUSABLE_FORMAT")
	}
	if ParseIssueType("made up") != "" {
		t.Error("expected unknown label to be empty")
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		issues   []Discrepancy
		expected AuditStatus
	}{
		{"perfect", 100, nil, AuditPass},
		{"pass floor", 85, nil, AuditPass},
		{"warnings", 84, nil, AuditPassWithWarnings},
		{"warnings floor", 70, nil, AuditPassWithWarnings},
		{"fail", 69, nil, AuditFail},
		{"fail floor", 50, nil, AuditFail},
		{"reject", 49, nil, AuditReject},
		{"hallucinated statistic", 75, []Discrepancy{{FieldPath: "statistics[0]", IssueType: IssueHallucination}}, AuditReject},
		{"hallucinated quote", 75, []Discrepancy{{FieldPath: "quotes[2].quote", IssueType: IssueHallucination}}, AuditReject},
		{"hallucinated finding", 75, []Discrepancy{{FieldPath: "key_findings[0]", IssueType: IssueHallucination}}, AuditPassWithWarnings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.score, tt.issues); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestIntegrityScore_Monotonic(t *testing.T) {
	base := []Discrepancy{
		{FieldPath: "key_findings[0]", IssueType: IssueScopeError},
		{FieldPath: "statistics[1]", IssueType: IssueContextLoss},
	}
	missed := []MissedIntelligence{{Importance: ImportanceImportant}}

	prev := IntegrityScore(base, missed)
	if prev != 80 {
		t.Fatalf("expected 80, got %d", prev)
	}

	issues := base
	for i := 0; i < 6; i++ {
		issues = append(issues, Discrepancy{FieldPath: "statistics[9]", IssueType: IssueHallucination})
		score := IntegrityScore(issues, missed)
		if score > prev {
			t.Fatalf("score rose from %d to %d after adding a hallucination", prev, score)
		}
		if score < 0 {
			t.Fatalf("score below zero: %d", score)
		}
		prev = score
	}
	if prev != 0 {
		t.Errorf("expected score floored at 0, got %d", prev)
	}
}

func TestImportance_IssueType(t *testing.T) {
	if ImportanceCritical.IssueType() != IssueMissingCritical {
		t.Error("expected critical mapping")
	}
	if ImportanceImportant.IssueType() != IssueMissingImportant {
		t.Error("expected important mapping")
	}
	if ImportanceMinor.IssueType() != "" {
		t.Error("expected minor omissions to carry no issue")
	}
}

func TestAuditReport_Finalize(t *testing.T) {
	a := &AuditReport{
		Discrepancies: []Discrepancy{
			{FieldPath: "statistics[0]", IssueType: IssueHallucination, Severity: SeverityCritical},
			{FieldPath: "quotes[0]", IssueType: IssueUnusableFormat, Severity: SeverityMinor},
		},
		UsabilityScore: 140,
	}
	a.Finalize()

	if a.IntegrityScore != 72 {
		t.Errorf("expected 72, got %d", a.IntegrityScore)
	}
	if a.Status != AuditReject {
		t.Errorf("expected REJECT, got %s", a.Status)
	}
	if a.Discrepancies[0].Penalty != 25 || a.Discrepancies[1].Penalty != 3 {
		t.Errorf("expected penalties to be filled, got %+v", a.Discrepancies)
	}
	if a.UsabilityScore != 100 {
		t.Errorf("expected usability clamped to 100, got %d", a.UsabilityScore)
	}
	if a.CountIssues(IssueHallucination) != 1 || a.CriticalErrorCount() != 1 {
		t.Error("unexpected counts")
	}
	if a.Accepted() {
		t.Error("expected rejected audit not to be accepted")
	}
}
