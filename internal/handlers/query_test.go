package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragline-assistant/internal/cache"
	"ragline-assistant/internal/llm"
)

const testConversationID = "00000000000000000000000000000001"

type mockLLMClient struct {
	answer      string
	err         error
	calls       int
	lastRequest *llm.ChatRequest
}

func (m *mockLLMClient) ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{Model: req.Model, Content: m.answer}, nil
}

// failingCache simulates an unreachable remote backend.
type failingCache struct {
	getErr    error
	insertErr error
	inner     cache.Cache
}

func (f *failingCache) Get(ctx context.Context, userID, conversationID string) ([]cache.CacheEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.inner.Get(ctx, userID, conversationID)
}

func (f *failingCache) InsertOrAppend(ctx context.Context, userID, conversationID string, entry cache.CacheEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.inner.InsertOrAppend(ctx, userID, conversationID, entry)
}

func (f *failingCache) Ready(ctx context.Context) error { return nil }

func doQuery(t *testing.T, h *QueryHandler, body QueryRequest, userID string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rr := httptest.NewRecorder()
	h.Query(rr, req)
	return rr
}

func TestQueryNewConversation(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	fakeLLM := &mockLLMClient{answer: "you can scale with the autoscaler"}
	h := NewQueryHandler(store, fakeLLM, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{Query: "how do I scale?"}, "user-42")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "you can scale with the autoscaler" {
		t.Fatalf("unexpected answer: %q", resp.Response)
	}
	if err := cache.ValidateConversationID(resp.ConversationID); err != nil {
		t.Fatalf("handler returned malformed conversation ID %q: %v", resp.ConversationID, err)
	}

	// the turn must be persisted under the returned ID
	entries, err := store.Get(context.Background(), "user-42", resp.ConversationID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Query != "how do I scale?" || entries[0].Response != resp.Response {
		t.Fatalf("turn not persisted correctly: %#v", entries)
	}
}

func TestQueryReplaysHistory(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	ctx := context.Background()

	if err := store.InsertOrAppend(ctx, "user-42", testConversationID, cache.CacheEntry{
		Query:    "what is a pod?",
		Response: "a group of containers",
	}); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	fakeLLM := &mockLLMClient{answer: "they share a network namespace"}
	h := NewQueryHandler(store, fakeLLM, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{Query: "why?", ConversationID: testConversationID}, "user-42")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// system prompt + prior q/a + new question
	msgs := fakeLLM.lastRequest.Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d: %#v", len(msgs), msgs)
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Fatalf("expected system prompt first, got %#v", msgs[0])
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "what is a pod?" {
		t.Fatalf("history question missing: %#v", msgs[1])
	}
	if msgs[2].Role != llm.RoleAssistant || msgs[2].Content != "a group of containers" {
		t.Fatalf("history answer missing: %#v", msgs[2])
	}
	if msgs[3].Role != llm.RoleUser || msgs[3].Content != "why?" {
		t.Fatalf("new question missing: %#v", msgs[3])
	}

	entries, err := store.Get(ctx, "user-42", testConversationID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 turns after follow-up, got %d", len(entries))
	}
}

func TestQueryRejectsBadInput(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	h := NewQueryHandler(store, &mockLLMClient{answer: "x"}, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{}, "user-42")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty query: expected 400, got %d", rr.Code)
	}

	rr = doQuery(t, h, QueryRequest{Query: "hi", ConversationID: "not-a-valid-id"}, "user-42")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad conversation ID: expected 422, got %d", rr.Code)
	}

	rr = doQuery(t, h, QueryRequest{Query: "hi"}, "user/with/slashes")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad user ID: expected 422, got %d", rr.Code)
	}
}

func TestQuerySoftFailsOnCacheReadError(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	broken := &failingCache{getErr: cache.ErrBackendUnavailable, inner: store}
	fakeLLM := &mockLLMClient{answer: "answer"}
	h := NewQueryHandler(broken, fakeLLM, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{Query: "hi", ConversationID: testConversationID}, "user-42")
	if rr.Code != http.StatusOK {
		t.Fatalf("read failure should degrade to a miss, got %d: %s", rr.Code, rr.Body.String())
	}
	if fakeLLM.calls != 1 {
		t.Fatalf("expected LLM to be called once, got %d", fakeLLM.calls)
	}
}

func TestQueryHardFailsOnCacheWriteError(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	broken := &failingCache{insertErr: cache.ErrBackendUnavailable, inner: store}
	h := NewQueryHandler(broken, &mockLLMClient{answer: "answer"}, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{Query: "hi"}, "user-42")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("dropped write must surface an error, got %d", rr.Code)
	}
}

func TestQueryUpstreamError(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	h := NewQueryHandler(store, &mockLLMClient{err: context.DeadlineExceeded}, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{Query: "hi"}, "user-42")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on LLM failure, got %d", rr.Code)
	}

	// nothing persisted for a failed turn
	if store.Len() != 0 {
		t.Fatalf("failed turn must not be cached, store has %d conversations", store.Len())
	}
}

func TestQueryAnonymousUserDefault(t *testing.T) {
	store := cache.NewInMemoryCache(10)
	h := NewQueryHandler(store, &mockLLMClient{answer: "hello"}, "gpt-4o-mini")

	rr := doQuery(t, h, QueryRequest{Query: "hi"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 without X-User-ID, got %d", rr.Code)
	}

	var resp QueryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	entries, err := store.Get(context.Background(), "anon", resp.ConversationID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected turn stored under anon user, got %#v", entries)
	}
}
