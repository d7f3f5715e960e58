package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DocType classifies knowledge base content.
type DocType string

const (
	DocTypeEmployee  DocType = "employee"
	DocTypeCustomer  DocType = "customer"
	DocTypeFinancial DocType = "financial"
	DocTypeProject   DocType = "project"
	DocTypeKnowledge DocType = "knowledge"
	DocTypeDocument  DocType = "document"
)

// DocTypes lists every type a document can be tagged with.
var DocTypes = []DocType{
	DocTypeDocument,
	DocTypeKnowledge,
	DocTypeProject,
	DocTypeEmployee,
	DocTypeCustomer,
	DocTypeFinancial,
}

func (d DocType) Valid() bool {
	return lo.Contains(DocTypes, d)
}

// Access levels attached to knowledge chunks.
const (
	AccessAllEmployees    = "all_employees"
	AccessHRManagersOnly  = "hr_managers_only"
	AccessSalesCSOnly     = "sales_cs_only"
	AccessFinanceExecOnly = "finance_exec_only"
)

// KnowledgeChunk is one embedded piece of a document or seed record.
type KnowledgeChunk struct {
	ID           string         `db:"id"`
	Content      string         `db:"content"`
	DocType      DocType        `db:"doc_type"`
	Filename     string         `db:"filename"` // empty for seed records
	Confidential bool           `db:"confidential"`
	AccessLevel  string         `db:"access_level"`
	ChunkIndex   int            `db:"chunk_index"`
	TotalChunks  int            `db:"total_chunks"`
	Metadata     map[string]any `db:"metadata"` // stored as JSONB, never sent to the LLM
	Embedding    []float32      `db:"embedding"`
	CreatedAt    time.Time      `db:"created_at"`
}

// ScoredChunk is a search hit with cosine similarity in [-1, 1].
type ScoredChunk struct {
	KnowledgeChunk
	Score float64
}

// ChunkSearchParams drives a vector search.
type ChunkSearchParams struct {
	Embedding           []float32
	TopK                int
	DocType             DocType // empty matches all
	IncludeConfidential bool
}

// KnowledgeStats summarises the knowledge base contents.
type KnowledgeStats struct {
	TotalChunks  int             `json:"total_chunks"`
	ByDocType    map[DocType]int `json:"by_doc_type"`
	Documents    int             `json:"documents"`
	Confidential int             `json:"confidential_chunks"`
}

// ChatExchange is one stored user message and bot reply. Text fields hold AES-GCM ciphertext.
type ChatExchange struct {
	ID                   uuid.UUID `db:"id"`
	UserID               string    `db:"user_id"`
	ChannelCID           string    `db:"channel_cid"`
	Route                string    `db:"route"`
	EncryptedUserMessage []byte    `db:"encrypted_user_message"`
	EncryptedReply       []byte    `db:"encrypted_reply"`
	CreatedAt            time.Time `db:"created_at"`
}
