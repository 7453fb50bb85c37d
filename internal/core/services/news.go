package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
	"github.com/sfdxb7/oc-hub/internal/runtime"
)

// Verify interface compliance
var _ driving.NewsService = (*NewsAnalyzer)(nil)

const (
	newsContentMaxChars = 3000
	newsTemperature     = 0.4
	newsMaxTokens       = 2048
)

var bulletPrefixes = []string{"- ", "* ", "• "}

// NewsAnalyzer produces ministerial briefings for news articles.
type NewsAnalyzer struct {
	services *runtime.Services
	metrics  driven.PipelineMetrics
	logger   *slog.Logger
}

// NewNewsAnalyzer creates a news analyzer.
func NewNewsAnalyzer(services *runtime.Services, metrics driven.PipelineMetrics, logger *slog.Logger) *NewsAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &NewsAnalyzer{services: services, metrics: metrics, logger: logger}
}

// Analyze asks the completion service for a briefing and parses its sections.
func (n *NewsAnalyzer) Analyze(ctx context.Context, article domain.NewsArticle) (*domain.NewsAnalysis, error) {
	if strings.TrimSpace(article.Content) == "" {
		return nil, fmt.Errorf("article content is required: %w", domain.ErrInvalidInput)
	}
	completion := n.services.CompletionService()
	if completion == nil {
		return nil, fmt.Errorf("no completion service configured: %w", domain.ErrServiceUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, domain.DefaultChatTimeout)
	defer cancel()

	content := domain.TruncateRunes(article.Content, newsContentMaxChars)
	resp, err := completion.Complete(callCtx, domain.CompletionRequest{
		SystemPrompt: newsSystemPrompt,
		Messages:     []domain.Message{{Role: domain.RoleUser, Content: buildNewsPrompt(article.Title, article.Source, article.Date, content)}},
		Temperature:  newsTemperature,
		MaxTokens:    newsMaxTokens,
		Timeout:      domain.DefaultChatTimeout,
	})
	if err != nil {
		n.logger.Warn("news analysis failed", "title", article.Title, "error", err)
		return nil, fmt.Errorf("completion call failed: %w", err)
	}
	n.metrics.CompletionUsage(resp.Model, resp.PromptTokens, resp.CompletionTokens)

	analysis := ParseNewsBriefing(resp.Content)
	analysis.Title = article.Title
	analysis.Model = resp.Model
	return analysis, nil
}

// newsAccumulator collects lines per section while the briefing is scanned.
type newsAccumulator struct {
	prose map[domain.NewsSection][]string
	items map[domain.NewsSection][]string
}

func (a *newsAccumulator) add(section domain.NewsSection, line string) {
	if section == domain.NewsSectionNone {
		return
	}
	if section.IsList() {
		for _, p := range bulletPrefixes {
			if strings.HasPrefix(line, p) {
				a.items[section] = append(a.items[section], strings.TrimSpace(line[len(p):]))
				return
			}
		}
		// Continuation of the previous bullet
		if n := len(a.items[section]); n > 0 {
			a.items[section][n-1] += " " + line
			return
		}
		a.items[section] = append(a.items[section], line)
		return
	}
	a.prose[section] = append(a.prose[section], line)
}

func (a *newsAccumulator) text(section domain.NewsSection) string {
	return strings.Join(a.prose[section], "\n")
}

// ParseNewsBriefing splits a markdown briefing into its sections. Text
// before the first recognised heading is ignored; unknown headings end the
// current section.
func ParseNewsBriefing(markdown string) *domain.NewsAnalysis {
	acc := &newsAccumulator{
		prose: make(map[domain.NewsSection][]string),
		items: make(map[domain.NewsSection][]string),
	}

	current := domain.NewsSectionNone
	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if section := domain.ParseNewsSection(line); section != domain.NewsSectionNone {
			current = section
			continue
		}
		if strings.HasPrefix(line, "#") {
			current = domain.NewsSectionNone
			continue
		}
		acc.add(current, line)
	}

	analysis := &domain.NewsAnalysis{
		Summary:         acc.text(domain.NewsSectionSummary),
		SoWhat:          acc.text(domain.NewsSectionSoWhat),
		UAEImplications: acc.text(domain.NewsSectionUAEImplications),
		Opportunities:   acc.items[domain.NewsSectionOpportunities],
		Risks:           acc.items[domain.NewsSectionRisks],
		TalkingPoint:    acc.text(domain.NewsSectionTalkingPoint),
	}
	if analysis.Opportunities == nil {
		analysis.Opportunities = []string{}
	}
	if analysis.Risks == nil {
		analysis.Risks = []string{}
	}
	return analysis
}
