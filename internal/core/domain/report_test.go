package domain

import "testing"

func TestReport_ApplyExtraction_ReplacesEverything(t *testing.T) {
	rep := &Report{}
	rep.ApplyExtraction(&ExtractionResult{
		ExecutiveSummary: "old summary",
		BriefingHook:     "old hook",
		Statistics:       []Statistic{{Text: "old stat"}},
		Methodology:      Methodology{ResearchType: "survey"},
	})

	rep.ApplyExtraction(&ExtractionResult{
		KeyFindings: []KeyFinding{{Finding: "new finding"}},
	})

	if rep.ExecutiveSummary != "" || rep.BriefingHook != "" {
		t.Error("expected previous summary to be cleared")
	}
	if len(rep.Statistics) != 0 {
		t.Errorf("expected previous statistics to be cleared, got %+v", rep.Statistics)
	}
	if rep.Statistics == nil {
		t.Error("expected empty list rather than nil")
	}
	if !rep.Methodology.IsZero() {
		t.Error("expected previous methodology to be cleared")
	}
	if len(rep.KeyFindings) != 1 {
		t.Error("expected new finding")
	}
}

func TestReport_ApplyExtraction_Nil(t *testing.T) {
	rep := &Report{ExecutiveSummary: "x"}
	rep.ApplyExtraction(nil)
	if rep.ExecutiveSummary != "" || rep.Quotes == nil {
		t.Errorf("expected empty extraction applied, got %+v", rep)
	}
}

func TestReport_ApplyAudit(t *testing.T) {
	rep := &Report{}
	rep.ApplyAudit(&AuditReport{Status: AuditPass, IntegrityScore: 92})
	if rep.AuditStatus != AuditPass || rep.IntegrityScore == nil || *rep.IntegrityScore != 92 {
		t.Errorf("unexpected audit summary %+v", rep)
	}

	rep.ApplyAudit(nil)
	if rep.AuditStatus != "" || rep.IntegrityScore != nil {
		t.Error("expected audit summary cleared")
	}
}
