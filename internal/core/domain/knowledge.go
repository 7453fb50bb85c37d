package domain

// KnowledgeBackend identifies a knowledge-base implementation.
type KnowledgeBackend string

const (
	KnowledgeBackendRAGFlow KnowledgeBackend = "ragflow"
	KnowledgeBackendChromem KnowledgeBackend = "chromem"
)

// KBDocument is a document stored in the knowledge base.
type KBDocument struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
}

// RetrievalQuery asks the knowledge base for passages.
type RetrievalQuery struct {
	CollectionIDs []string `json:"collection_ids"`
	Question      string   `json:"question"`
	TopK          int      `json:"top_k"`
	// DocumentIDs restricts results to these documents when non-empty.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// DefaultRetrievalTopK is used when a query leaves TopK unset.
const DefaultRetrievalTopK = 8

// RetrievedChunk is one passage returned by the knowledge base.
type RetrievedChunk struct {
	Content      string  `json:"content"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         *int    `json:"page,omitempty"`
	Score        float64 `json:"score"`
}
