package models

// IngestItem is a raw fact handed to the ingestion queue by writers.
type IngestItem struct {
	Text       string            `json:"text"`
	UserID     string            `json:"user_id"`
	SessionID  string            `json:"session_id"`
	Role       string            `json:"role,omitempty"`
	TS         int64             `json:"ts,omitempty"`
	OriginRef  string            `json:"origin_ref,omitempty"`
	ChunkIndex int               `json:"chunk_index,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IngestEnvelope is the envelope pushed to the FIFO queue between the
// writer and the worker. The item is pre-serialized so the queue never
// needs to understand item shapes.
type IngestEnvelope struct {
	ItemJSON   string `json:"item_json"`
	Collection string `json:"collection"`
}
