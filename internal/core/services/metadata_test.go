package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

func TestInferMetadata(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		org      string
		year     int // 0 means nil
		category string
	}{
		{"dubai news", "2024-03-02_dubai_ai_summit", "Dubai News", 2024, domain.CategoryNews},
		{"uae news with hyphen", "2025-01-15-uae_budget", "UAE News", 2025, domain.CategoryNews},
		{"generic news", "2023-11-30_openai_board", "News Article", 2023, domain.CategoryNews},
		{"consulting", "BCG_AI_at_Scale_2024", "BCG", 2024, domain.CategoryConsulting},
		{"consulting before country", "McKinsey_UAE_GenAI_2023", "McKinsey", 2023, domain.CategoryConsulting},
		{"ey needs underscore", "EY_Trust_Report_2022", "EY", 2022, domain.CategoryConsulting},
		{"think tank", "Brookings_AI_Governance_2021", "Brookings Institution", 2021, domain.CategoryThinkTank},
		{"academic", "arxiv_2024_scaling", "arXiv", 2024, domain.CategoryAcademic},
		{"earlier keyword inside a word wins", "arxiv_2024_scaling_laws", "AWS", 2024, domain.CategoryPolicy},
		{"government", "Digital_Dubai_Strategy", "Digital Dubai", 0, domain.CategoryPolicy},
		{"uae fallback", "uae_national_strategy_2031", "UAE Government", 0, domain.CategoryPolicy},
		{"unknown org policy keyword", "Global_Regulation_Overview_2019", domain.UnknownOrganization, 2019, domain.CategoryPolicy},
		{"unknown org news keyword", "weekly_press_digest", domain.UnknownOrganization, 0, domain.CategoryNews},
		{"unknown everything", "random_report", domain.UnknownOrganization, 0, domain.CategoryResearch},
		{"org without class", "Gartner_Hype_Cycle_2020", "Gartner", 2020, domain.CategoryResearch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferMetadata(tt.key, "")
			assert.Equal(t, tt.org, got.Organization)
			assert.Equal(t, tt.category, got.Category)
			if tt.year == 0 {
				assert.Nil(t, got.Year)
			} else {
				require.NotNil(t, got.Year)
				assert.Equal(t, tt.year, *got.Year)
			}
		})
	}
}

func TestInferMetadata_YearFromHeading(t *testing.T) {
	got := InferMetadata("random_report", "# State of AI 2022\n\nBody text")
	require.NotNil(t, got.Year)
	assert.Equal(t, 2022, *got.Year)

	// A year deep in the body is ignored
	got = InferMetadata("random_report", "# Title\n\nIn 2021 something happened")
	assert.Nil(t, got.Year)
}

func TestInferMetadata_Deterministic(t *testing.T) {
	keys := []string{"BCG_AI_at_Scale_2024", "2024-03-02_dubai_ai_summit", "whatever", "who_health_2020"}
	for _, key := range keys {
		first := InferMetadata(key, "sample")
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, InferMetadata(key, "sample"), key)
		}
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		want    string
	}{
		{"top heading", "# The State of AI\n\nIntro", "x", "The State of AI"},
		{"heading after blank lines", "\n\n# Title Here\n", "x", "Title Here"},
		{"substantial line", "## Sub heading\nA substantial first line of text\n# Late Heading", "x", "A substantial first line of text"},
		{"skips page markers", "<!-- Page 1 -->\n# Real Title", "x", "Real Title"},
		{"short lines fall back", "short\n## only subheadings", "bcg_ai-report", "Bcg Ai Report"},
		{"heading beyond scan window", "\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n# Too Late", "late_title", "Late Title"},
		{"empty content", "", "future_of_life_2023", "Future Of Life 2023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.content, tt.key))
		})
	}
}
