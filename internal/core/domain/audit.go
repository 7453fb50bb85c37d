package domain

import "strings"

// AuditStatus is the verdict of an audit pass.
type AuditStatus string

const (
	AuditPass             AuditStatus = "PASS"
	AuditPassWithWarnings AuditStatus = "PASS_WITH_WARNINGS"
	AuditFail             AuditStatus = "FAIL"
	AuditReject           AuditStatus = "REJECT"
)

// IssueType classifies a discrepancy between an extraction and its source.
type IssueType string

const (
	IssueHallucination    IssueType = "HALLUCINATION"
	IssueContextLoss      IssueType = "CONTEXT_LOSS"
	IssueTemporalError    IssueType = "TEMPORAL_ERROR"
	IssueAttributionError IssueType = "ATTRIBUTION_ERROR"
	IssueScopeError       IssueType = "SCOPE_ERROR"
	IssueMissingCritical  IssueType = "MISSING_CRITICAL"
	IssueMissingImportant IssueType = "MISSING_IMPORTANT"
	IssueUnusableFormat   IssueType = "UNUSABLE_FORMAT"
)

var issuePenalties = map[IssueType]int{
	IssueHallucination:    25,
	IssueContextLoss:      10,
	IssueTemporalError:    10,
	IssueAttributionError: 5,
	IssueScopeError:       5,
	IssueMissingCritical:  15,
	IssueMissingImportant: 5,
	IssueUnusableFormat:   3,
}

// Penalty returns the points deducted for one issue of this type.
func (t IssueType) Penalty() int {
	return issuePenalties[t]
}

// ParseIssueType normalises a label such as "context loss". Unknown labels return "".
func ParseIssueType(s string) IssueType {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	t := IssueType(s)
	if _, ok := issuePenalties[t]; ok {
		return t
	}
	return ""
}

// Severity grades a discrepancy.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Importance grades missed intelligence.
type Importance string

const (
	ImportanceCritical  Importance = "critical"
	ImportanceImportant Importance = "important"
	ImportanceMinor     Importance = "minor"
)

// IssueType maps missed intelligence to the issue it is penalised as.
// Minor omissions carry no penalty and return "".
func (i Importance) IssueType() IssueType {
	switch i {
	case ImportanceCritical:
		return IssueMissingCritical
	case ImportanceImportant:
		return IssueMissingImportant
	}
	return ""
}

// Discrepancy is one itemised audit finding.
type Discrepancy struct {
	FieldPath      string    `json:"field_path"`
	IssueType      IssueType `json:"issue_type"`
	ExtractedValue string    `json:"extracted_value"`
	SourceEvidence string    `json:"source_evidence,omitempty"`
	WhatWasLost    string    `json:"what_was_lost,omitempty"`
	Correction     string    `json:"correction,omitempty"`
	Severity       Severity  `json:"severity"`
	Penalty        int       `json:"penalty_applied"`
}

// MissedIntelligence is source content the extraction should have captured.
type MissedIntelligence struct {
	Description    string     `json:"description"`
	SourceQuote    string     `json:"source_quote,omitempty"`
	Location       string     `json:"location,omitempty"`
	SuggestedField string     `json:"suggested_field,omitempty"`
	Importance     Importance `json:"importance"`
}

// AuditReport is the scored comparison of an extraction against its source.
type AuditReport struct {
	Status          AuditStatus          `json:"status"`
	IntegrityScore  int                  `json:"integrity_score"`
	UsabilityScore  int                  `json:"usability_score"`
	Discrepancies   []Discrepancy        `json:"discrepancies"`
	Missed          []MissedIntelligence `json:"missed_intelligence"`
	UsabilityIssues []string             `json:"usability_issues,omitempty"`
	Summary         string               `json:"audit_summary,omitempty"`
}

// MaxScore is the starting score before penalties.
const MaxScore = 100

// IntegrityScore computes 100 minus all penalties, floored at 0.
// Adding a discrepancy can never raise the score.
func IntegrityScore(discrepancies []Discrepancy, missed []MissedIntelligence) int {
	score := MaxScore
	for _, d := range discrepancies {
		score -= d.IssueType.Penalty()
	}
	for _, m := range missed {
		score -= m.Importance.IssueType().Penalty()
	}
	if score < 0 {
		return 0
	}
	return score
}

// DeriveStatus maps a score to a verdict. Any hallucinated statistic or
// quote forces REJECT regardless of score.
func DeriveStatus(score int, discrepancies []Discrepancy) AuditStatus {
	if score < 50 || hasHallucinatedFact(discrepancies) {
		return AuditReject
	}
	switch {
	case score < 70:
		return AuditFail
	case score < 85:
		return AuditPassWithWarnings
	default:
		return AuditPass
	}
}

// Finalize recomputes score and status from the itemised findings.
func (a *AuditReport) Finalize() {
	for i := range a.Discrepancies {
		a.Discrepancies[i].Penalty = a.Discrepancies[i].IssueType.Penalty()
	}
	a.IntegrityScore = IntegrityScore(a.Discrepancies, a.Missed)
	a.Status = DeriveStatus(a.IntegrityScore, a.Discrepancies)
	if a.UsabilityScore < 0 {
		a.UsabilityScore = 0
	}
	if a.UsabilityScore > MaxScore {
		a.UsabilityScore = MaxScore
	}
}

// CountIssues returns how many discrepancies have the given type.
func (a *AuditReport) CountIssues(t IssueType) int {
	n := 0
	for _, d := range a.Discrepancies {
		if d.IssueType == t {
			n++
		}
	}
	return n
}

// CriticalErrorCount returns the number of critical-severity discrepancies.
func (a *AuditReport) CriticalErrorCount() int {
	n := 0
	for _, d := range a.Discrepancies {
		if d.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// Accepted reports whether the extraction may be kept without re-extraction.
func (a *AuditReport) Accepted() bool {
	return a != nil && a.Status != AuditReject
}

func hasHallucinatedFact(discrepancies []Discrepancy) bool {
	for _, d := range discrepancies {
		if d.IssueType != IssueHallucination {
			continue
		}
		if strings.HasPrefix(d.FieldPath, "statistics") || strings.HasPrefix(d.FieldPath, "quotes") {
			return true
		}
	}
	return false
}
