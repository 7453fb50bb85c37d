package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/normalisers"
	"github.com/sfdxb7/oc-hub/internal/postprocessors"
)

// Verify interface compliance
var _ driven.KnowledgeBase = (*Store)(nil)

var tracer = otel.Tracer("oc-hub/knowledge/chromem")

// Chunk metadata keys
const (
	metaDocumentID   = "document_id"
	metaDocumentName = "document_name"
	metaPage         = "page"
)

// Config configures the local knowledge base.
type Config struct {
	// PersistDir stores collections on disk. Empty keeps everything in memory.
	PersistDir string
	Compress   bool
	Chunking   postprocessors.ChunkConfig
}

// Store implements KnowledgeBase with an embedded chromem-go vector database.
// Collections are addressed by name, so a collection ID is its name.
// Documents are chunked per page and indexed on upload.
type Store struct {
	db       *chromem.DB
	embedder driven.EmbeddingService
	chunker  *postprocessors.Chunker
	logger   *slog.Logger
}

// NewStore opens (or creates) the vector database.
func NewStore(cfg Config, embedder driven.EmbeddingService, logger *slog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("embedding service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if cfg.PersistDir != "" {
		if err := os.MkdirAll(cfg.PersistDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.PersistDir, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistDir, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	chunking := cfg.Chunking
	if chunking.MaxChunkSize == 0 {
		chunking = postprocessors.DefaultChunkConfig()
	}

	logger.Info("local knowledge base initialized",
		"path", cfg.PersistDir,
		"embedding_model", embedder.Model(),
	)

	return &Store{
		db:       db,
		embedder: embedder,
		chunker:  postprocessors.NewChunker(chunking),
		logger:   logger,
	}, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// EnsureCollection creates the named collection if needed and returns its name.
func (s *Store) EnsureCollection(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}
	if _, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc()); err != nil {
		return "", fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return name, nil
}

// UploadText chunks the text per page, embeds the chunks, and stores them.
func (s *Store) UploadText(ctx context.Context, collectionID, name, text string) (*domain.KBDocument, error) {
	ctx, span := tracer.Start(ctx, "chromem.UploadText")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collectionID), attribute.String("document", name))

	collection := s.db.GetCollection(collectionID, s.embeddingFunc())
	if collection == nil {
		err := fmt.Errorf("%w: collection %s not found", domain.ErrUpload, collectionID)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	chunks := s.chunker.ChunkDocument(text, normalisers.SplitPages(text))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpload, name, domain.ErrEmptySource)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: embedding %s: %v", domain.ErrUpload, name, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrUpload, len(chunks), len(embeddings))
	}

	docID := uuid.NewString()
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		meta := map[string]string{
			metaDocumentID:   docID,
			metaDocumentName: name,
		}
		if c.Page > 0 {
			meta[metaPage] = strconv.Itoa(c.Page)
		}
		docs[i] = chromem.Document{
			ID:        docID + "#" + strconv.Itoa(c.Position),
			Content:   c.Content,
			Metadata:  meta,
			Embedding: embeddings[i],
		}
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: adding chunks: %v", domain.ErrUpload, err)
	}

	span.SetAttributes(attribute.Int("chunks", len(docs)))
	s.logger.Debug("indexed document", "collection", collectionID, "document", name, "chunks", len(docs))

	return &domain.KBDocument{ID: docID, CollectionID: collectionID, Name: name}, nil
}

// TriggerParse is a no-op: documents are indexed on upload.
func (s *Store) TriggerParse(ctx context.Context, collectionID string, documentIDs []string) error {
	return nil
}

// Retrieve queries every collection and merges the hits by similarity.
func (s *Store) Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]*domain.RetrievedChunk, error) {
	ctx, span := tracer.Start(ctx, "chromem.Retrieve")
	defer span.End()

	if len(query.CollectionIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one collection is required", domain.ErrInvalidInput)
	}
	if query.Question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	topK := query.TopK
	if topK <= 0 {
		topK = domain.DefaultRetrievalTopK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	embedding, err := s.embedder.EmbedQuery(ctx, query.Question)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	allowed := make(map[string]bool, len(query.DocumentIDs))
	for _, id := range query.DocumentIDs {
		allowed[id] = true
	}

	var out []*domain.RetrievedChunk
	for _, name := range query.CollectionIDs {
		collection := s.db.GetCollection(name, s.embeddingFunc())
		if collection == nil {
			continue
		}
		count := collection.Count()
		if count == 0 {
			continue
		}

		// chromem requires nResults <= document count. A document filter
		// scans the whole collection and filters afterwards.
		n := topK
		if len(allowed) > 0 || n > count {
			n = count
		}

		results, err := collection.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("querying collection %s: %w", name, err)
		}

		for _, r := range results {
			if len(allowed) > 0 && !allowed[r.Metadata[metaDocumentID]] {
				continue
			}
			chunk := &domain.RetrievedChunk{
				Content:      r.Content,
				DocumentID:   r.Metadata[metaDocumentID],
				DocumentName: r.Metadata[metaDocumentName],
				Score:        float64(r.Similarity),
			}
			if p, err := strconv.Atoi(r.Metadata[metaPage]); err == nil {
				chunk.Page = &p
			}
			out = append(out, chunk)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// HealthCheck verifies the embedding service the store depends on.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.embedder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return nil
}
