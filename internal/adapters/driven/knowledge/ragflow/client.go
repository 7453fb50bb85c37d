package ragflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.KnowledgeBase = (*Client)(nil)

const (
	defaultTimeout = 60 * time.Second

	// Retrieval tuning sent with every query
	similarityThreshold     = 0.2
	keywordSimilarityWeight = 0.3

	chunkMethod = "naive"
)

// Config holds RAGFlow connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements KnowledgeBase against the RAGFlow v1 REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a RAGFlow client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("ragflow base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// envelope is the wrapper RAGFlow puts around every response.
// A non-zero code is an application error even on HTTP 200.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// apiError is a failed RAGFlow call
type apiError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *apiError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ragflow error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("ragflow HTTP %d: %s", e.StatusCode, e.Message)
}

type dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type uploadedDocument struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DatasetID string `json:"dataset_id"`
}

type retrievalRequest struct {
	DatasetIDs              []string `json:"dataset_ids"`
	DocumentIDs             []string `json:"document_ids,omitempty"`
	Question                string   `json:"question"`
	TopK                    int      `json:"top_k"`
	SimilarityThreshold     float64  `json:"similarity_threshold"`
	KeywordSimilarityWeight float64  `json:"keyword_similarity_weight"`
}

type retrievedChunk struct {
	Content      string      `json:"content"`
	DocumentID   string      `json:"document_id"`
	DocumentName string      `json:"document_keyword"`
	Similarity   float64     `json:"similarity"`
	Positions    [][]float64 `json:"positions"`
}

type retrievalData struct {
	Chunks []retrievedChunk `json:"chunks"`
}

// EnsureCollection looks up the dataset by name and creates it when absent.
func (c *Client) EnsureCollection(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}

	var existing []dataset
	q := url.Values{"name": {name}, "page": {"1"}, "page_size": {"30"}}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/datasets?"+q.Encode(), nil, &existing)
	var ae *apiError
	switch {
	case err == nil:
		for _, d := range existing {
			if d.Name == name {
				return d.ID, nil
			}
		}
	case errors.As(err, &ae) && ae.Code != 0:
		// RAGFlow answers an unknown name with an application error
		c.logger.Debug("dataset lookup returned no match", "name", name, "error", err)
	default:
		return "", fmt.Errorf("failed to list datasets: %w", err)
	}

	var created dataset
	body := map[string]any{"name": name, "chunk_method": chunkMethod}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/datasets", body, &created); err != nil {
		return "", fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("ragflow created dataset %s without an ID", name)
	}

	c.logger.Info("created knowledge base dataset", "name", name, "id", created.ID)
	return created.ID, nil
}

// UploadText uploads text as a markdown file. Names without an extension get ".md".
func (c *Client) UploadText(ctx context.Context, collectionID, name, text string) (*domain.KBDocument, error) {
	if !strings.HasSuffix(name, ".md") && !strings.HasSuffix(name, ".txt") {
		name += ".md"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", "text/markdown")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	if _, err := io.WriteString(part, text); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/datasets/"+url.PathEscape(collectionID)+"/documents", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var docs []uploadedDocument
	if err := c.do(req, &docs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpload, name, err)
	}
	if len(docs) == 0 || docs[0].ID == "" {
		return nil, fmt.Errorf("%w: %s: no document returned", domain.ErrUpload, name)
	}

	c.logger.Debug("uploaded document", "name", name, "id", docs[0].ID, "dataset_id", collectionID)
	return &domain.KBDocument{
		ID:           docs[0].ID,
		CollectionID: collectionID,
		Name:         name,
	}, nil
}

// TriggerParse starts chunking and embedding for uploaded documents.
func (c *Client) TriggerParse(ctx context.Context, collectionID string, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	body := map[string]any{"document_ids": documentIDs}
	path := "/api/v1/datasets/" + url.PathEscape(collectionID) + "/chunks"
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("%w: parse request: %v", domain.ErrUpload, err)
	}
	return nil
}

// Retrieve runs a hybrid keyword/vector search across the given datasets.
func (c *Client) Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]*domain.RetrievedChunk, error) {
	if len(query.CollectionIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one collection is required", domain.ErrInvalidInput)
	}
	topK := query.TopK
	if topK <= 0 {
		topK = domain.DefaultRetrievalTopK
	}

	req := retrievalRequest{
		DatasetIDs:              query.CollectionIDs,
		DocumentIDs:             query.DocumentIDs,
		Question:                query.Question,
		TopK:                    topK,
		SimilarityThreshold:     similarityThreshold,
		KeywordSimilarityWeight: keywordSimilarityWeight,
	}

	var data retrievalData
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/retrieval", req, &data); err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	out := make([]*domain.RetrievedChunk, 0, len(data.Chunks))
	for _, ch := range data.Chunks {
		rc := &domain.RetrievedChunk{
			Content:      ch.Content,
			DocumentID:   ch.DocumentID,
			DocumentName: ch.DocumentName,
			Score:        ch.Similarity,
		}
		// positions rows are [page, x0, x1, y0, y1] for layout-parsed files
		if len(ch.Positions) > 0 && len(ch.Positions[0]) > 0 {
			page := int(ch.Positions[0][0])
			rc.Page = &page
		}
		out = append(out, rc)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// HealthCheck calls the system health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/system/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ragflow: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ragflow returned status %d", domain.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do sends req and decodes the envelope's data into out (when non-nil).
func (c *Client) do(req *http.Request, out any) error {
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("ragflow request failed",
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"response", domain.TruncateRunes(string(raw), 500),
		)
		return &apiError{StatusCode: resp.StatusCode, Message: domain.TruncateRunes(string(raw), 200)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = "unknown ragflow error"
		}
		return &apiError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" || string(env.Data) == "true" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
