package models

// --- Request Structs ---

// StreamTokenRequest is sent by the widget before it connects to the hosted chat.
type StreamTokenRequest struct {
	UserID string `json:"user_id" validate:"required,max=64,printascii"`
	Name   string `json:"name" validate:"omitempty,max=100"`
	Image  string `json:"image" validate:"omitempty,url"`
}

// ClearChatRequest asks for the user's support channel to be emptied.
type ClearChatRequest struct {
	UserID string `json:"user_id" validate:"required,max=64,printascii"`
}

// ChatRequest is a direct (non-webhook) chat message.
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
	UserID  string `json:"user_id" validate:"required,max=64"`
}

// AdminLoginRequest defines the expected body for the admin login endpoint.
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// --- Response Structs ---

// ChatResponse is returned by the chat endpoints.
type ChatResponse struct {
	Reply    string   `json:"reply"`
	Route    string   `json:"route,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// StatusResponse mirrors the widget's expectations for side-effect endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebhookAck acknowledges a hosted chat webhook delivery.
type WebhookAck struct {
	Received bool `json:"received"`
}

// AuthResponse defines the response body for successful admin authentication.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Knowledge Base DTOs ---

// SearchHit is one knowledge base search result as shown to admins.
type SearchHit struct {
	ID           string  `json:"id"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	DocType      DocType `json:"doc_type"`
	Filename     string  `json:"filename,omitempty"`
	Confidential bool    `json:"confidential"`
	AccessLevel  string  `json:"access_level"`
}

// IngestResponse reports a document ingestion.
type IngestResponse struct {
	Status          string `json:"status"`
	ChunksCreated   int    `json:"chunks_created"`
	VectorsUpserted int    `json:"vectors_upserted"`
	Filename        string `json:"filename"`
	FileType        string `json:"file_type,omitempty"`
	CharCount       int    `json:"char_count,omitempty"`
}

// DeleteDocumentResponse reports how many chunks were removed.
type DeleteDocumentResponse struct {
	Filename      string `json:"filename"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}
