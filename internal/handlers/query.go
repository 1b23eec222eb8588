package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ragline-assistant/internal/cache"
	"ragline-assistant/internal/llm"
	"ragline-assistant/internal/metrics"
	"ragline-assistant/pkg/logging/logging"
)

const systemPrompt = "You are an assistant for technical product questions. " +
	"Answer concisely from the conversation so far and your domain knowledge."

// QueryRequest is the POST /v1/query payload. An empty ConversationID
// starts a new conversation; the generated ID is returned for continuity.
type QueryRequest struct {
	Query          string             `json:"query"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Model          string             `json:"model,omitempty"`
	Attachments    []cache.Attachment `json:"attachments,omitempty"`
}

type QueryResponse struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// QueryHandler holds dependencies for the /v1/query endpoint.
type QueryHandler struct {
	Cache        cache.Cache
	LLM          llm.Client
	DefaultModel string
}

func NewQueryHandler(c cache.Cache, llmClient llm.Client, defaultModel string) *QueryHandler {
	return &QueryHandler{
		Cache:        c,
		LLM:          llmClient,
		DefaultModel: defaultModel,
	}
}

// Query handles POST /v1/query: replay the conversation's history from the
// cache, ask the LLM, persist the new turn, and answer.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = "anon"
	}
	if err := cache.ValidateUserID(userID); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = h.DefaultModel
	}

	conversationID := req.ConversationID
	newConversation := conversationID == ""
	if newConversation {
		conversationID = cache.NewConversationID()
	}

	// ---- prior history ----
	var history []cache.CacheEntry
	if !newConversation {
		var err error
		history, err = h.Cache.Get(ctx, userID, conversationID)
		switch {
		case errors.Is(err, cache.ErrInvalidIdentifier):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case errors.Is(err, cache.ErrBackendUnavailable):
			// Soft-fail reads: an unreachable backend degrades to "no
			// history" rather than failing the question.
			logger.Warn("cache get failed, treating as miss", zap.Error(err))
			history = nil
		case err != nil:
			logger.Error("cache get failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	// ---- LLM call with replayed history ----
	messages := make([]llm.ChatMessage, 0, 2*len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: turn.Query})
		if turn.Response != "" {
			messages = append(messages, llm.ChatMessage{Role: llm.RoleAssistant, Content: turn.Response})
		}
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: req.Query})

	llmResp, err := h.LLM.ChatCompletion(ctx, &llm.ChatRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		logger.Error("llm call failed", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "upstream LLM error")
		return
	}

	// ---- persist the new turn ----
	entry := cache.CacheEntry{
		Query:       req.Query,
		Response:    llmResp.Content,
		Attachments: req.Attachments,
	}
	if err := h.Cache.InsertOrAppend(ctx, userID, conversationID, entry); err != nil {
		if errors.Is(err, cache.ErrInvalidIdentifier) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		// Hard-fail writes: silently dropping a turn would corrupt the
		// conversation in a way the user cannot detect.
		logger.Error("cache insert_or_append failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to persist conversation")
		return
	}

	metrics.QueriesTotal.WithLabelValues(model).Inc()
	logger.Info("query answered",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.String("model", model),
		zap.Bool("new_conversation", newConversation),
		zap.Int("history_turns", len(history)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	h.writeJSON(w, QueryResponse{
		ConversationID: conversationID,
		Response:       llmResp.Content,
	})
}

func (h *QueryHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *QueryHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
