package cache

import (
	"encoding/json"
	"fmt"
)

// Attachment is optional retrieval metadata carried with a question, e.g. a
// document snippet the user pasted alongside it.
type Attachment struct {
	AttachmentType string `json:"attachment_type"`
	ContentType    string `json:"content_type"`
	Content        string `json:"content"`
}

// CacheEntry is one question/answer turn within a conversation. Turns for
// one conversation form an ordered, append-only sequence, oldest first.
type CacheEntry struct {
	Query       string       `json:"human_query"`
	Response    string       `json:"ai_response"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// marshalEntries and unmarshalEntries are the wire codec shared by the
// Redis and Postgres backends. The in-process backend stores entries as-is.

func marshalEntries(entries []CacheEntry) ([]byte, error) {
	buf, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode cache entries: %w", err)
	}
	return buf, nil
}

func unmarshalEntries(raw []byte) ([]CacheEntry, error) {
	var entries []CacheEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode cache entries: %w", err)
	}
	return entries, nil
}
