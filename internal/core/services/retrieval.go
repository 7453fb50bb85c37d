package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.RetrievalService = (*RetrievalService)(nil)

// Retrieval cache defaults.
const (
	DefaultRetrievalCacheSize = 256
	DefaultRetrievalCacheTTL  = 10 * time.Minute
	maxRetrievalTopK          = 50
)

// RetrievalService answers questions from the knowledge base, optionally
// restricted to a set of reports. Results are cached briefly.
type RetrievalService struct {
	knowledgeBase driven.KnowledgeBase
	reports       driven.ReportStore
	collection    string
	cache         *expirable.LRU[string, []*domain.RetrievedChunk]
	logger        *slog.Logger
}

// RetrievalServiceConfig holds dependencies for RetrievalService.
type RetrievalServiceConfig struct {
	KnowledgeBase driven.KnowledgeBase
	Reports       driven.ReportStore
	Collection    string
	CacheSize     int
	CacheTTL      time.Duration
	Logger        *slog.Logger
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(cfg RetrievalServiceConfig) *RetrievalService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultRetrievalCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultRetrievalCacheTTL
	}
	return &RetrievalService{
		knowledgeBase: cfg.KnowledgeBase,
		reports:       cfg.Reports,
		collection:    collection,
		cache:         expirable.NewLRU[string, []*domain.RetrievedChunk](size, nil, ttl),
		logger:        logger,
	}
}

// Retrieve returns passages for question. When reportIDs is non-empty only
// those reports' knowledge-base documents are searched; reports that were
// never uploaded are ignored.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, topK int, reportIDs []string) ([]*domain.RetrievedChunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", domain.ErrInvalidInput)
	}
	if s.knowledgeBase == nil {
		return nil, fmt.Errorf("no knowledge base configured: %w", domain.ErrServiceUnavailable)
	}
	if topK <= 0 {
		topK = domain.DefaultRetrievalTopK
	}
	topK = min(topK, maxRetrievalTopK)

	// Step 1: Resolve report IDs to knowledge-base document IDs
	var docIDs []string
	if len(reportIDs) > 0 {
		var err error
		docIDs, err = s.documentIDs(ctx, reportIDs)
		if err != nil {
			return nil, err
		}
		if len(docIDs) == 0 {
			return []*domain.RetrievedChunk{}, nil
		}
	}

	key := cacheKey(question, topK, docIDs)
	if chunks, ok := s.cache.Get(key); ok {
		return chunks, nil
	}

	// Step 2: Query the knowledge base
	collectionID, err := s.knowledgeBase.EnsureCollection(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve collection: %w", err)
	}
	chunks, err := s.knowledgeBase.Retrieve(ctx, domain.RetrievalQuery{
		CollectionIDs: []string{collectionID},
		Question:      question,
		TopK:          topK,
		DocumentIDs:   docIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if chunks == nil {
		chunks = []*domain.RetrievedChunk{}
	}

	s.cache.Add(key, chunks)
	s.logger.Debug("retrieved passages", "question_chars", len(question), "results", len(chunks))
	return chunks, nil
}

func (s *RetrievalService) documentIDs(ctx context.Context, reportIDs []string) ([]string, error) {
	var ids []string
	for _, id := range reportIDs {
		report, err := s.reports.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load report %s: %w", id, err)
		}
		if report.KnowledgeBaseDocID != nil {
			ids = append(ids, *report.KnowledgeBaseDocID)
		}
	}
	return ids, nil
}

func cacheKey(question string, topK int, docIDs []string) string {
	sorted := append([]string(nil), docIDs...)
	sort.Strings(sorted)
	return strings.ToLower(question) + "\x00" + strconv.Itoa(topK) + "\x00" + strings.Join(sorted, ",")
}
