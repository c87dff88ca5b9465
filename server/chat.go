package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"

	ragstream "github.com/TharushaKula/RAG-agent-sub001"
	"github.com/TharushaKula/RAG-agent-sub001/store"
)

// ContextStore is the document side of the store the chat handler grounds
// answers on.
type ContextStore interface {
	ListAvailable(ctx context.Context) (store.Catalog, error)
	GetDocuments(ctx context.Context, ids []string) ([]store.Document, error)
	IngestText(ctx context.Context, kind, source, userID, text string) (int, error)
}

const chatSystemPrompt = `You are a helpful assistant. Use the following context to answer the user's question.
If the answer is not in the context, say so.

Context:
%s`

// citationContentLimit bounds how much document content travels in the
// sources header; the header is metadata, not the document itself.
const citationContentLimit = 200

// ChatHandler serves the turn-stream protocol: plain-text body fragments
// streamed as they are generated, with the citation list base64-encoded into
// the sources header before the first body byte is flushed.
type ChatHandler struct {
	LLM    LLM
	Store  ContextStore
	Model  string
	Logger *slog.Logger
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var req ragstream.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "no messages")
		return
	}

	docs, err := h.Store.GetDocuments(r.Context(), req.ContextIDs)
	if err != nil {
		logger.Error("context lookup failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "context lookup failed")
		return
	}

	contextText := make([]string, 0, len(docs))
	cites := make([]ragstream.Citation, 0, len(docs))
	for _, d := range docs {
		contextText = append(contextText, d.Content)
		cites = append(cites, ragstream.Citation{
			Source:  d.Source,
			Content: truncate(d.Content, citationContentLimit),
		})
	}

	// The header carries the one-shot side channel; it has to be written
	// before anything is flushed.
	encoded, err := ragstream.EncodeSources(cites)
	if err != nil {
		logger.Error("encode sources failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "encode sources failed")
		return
	}
	w.Header().Set(ragstream.SourcesHeader, encoded)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	params := openai.ChatCompletionNewParams{
		Messages: h.buildMessages(req.Messages, strings.Join(contextText, "\n\n")),
		Model:    openai.ChatModel(h.Model),
	}
	stream := h.LLM.NewStreaming(r.Context(), params)
	defer stream.Close()

	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if _, err := io.WriteString(w, delta); err != nil {
			logger.Warn("client went away mid-stream", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := stream.Err(); err != nil {
		// Headers are long gone; all that is left is to log and let the
		// client see a truncated body.
		logger.Error("completion stream failed", "error", err)
	}
}

func (h *ChatHandler) buildMessages(history []ragstream.ChatMessage, contextText string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(fmt.Sprintf(chatSystemPrompt, contextText)))
	for _, m := range history {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
