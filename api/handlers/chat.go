package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BaSui01/agentflow/api"
	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/gwerr"
	"go.uber.org/zap"
)

// ChatCompletionsHandler serves the OpenAI-compatible /v1/chat/completions
// surface (spec §6.1), dispatching through gateway.Dispatcher instead of a
// single llm.Provider — the router/fallback/circuit-breaker machinery
// (spec §4) sits between this handler and any given upstream.
type ChatCompletionsHandler struct {
	dispatcher *gateway.Dispatcher
	idgen      gateway.IDGen
	logger     *zap.Logger
}

// NewChatCompletionsHandler builds the gateway-backed chat handler.
func NewChatCompletionsHandler(dispatcher *gateway.Dispatcher, idgen gateway.IDGen, logger *zap.Logger) *ChatCompletionsHandler {
	if idgen == nil {
		idgen = gateway.UUIDGen{}
	}
	return &ChatCompletionsHandler{dispatcher: dispatcher, idgen: idgen, logger: logger}
}

// ServeHTTP implements http.Handler so this type can be registered
// directly with a ServeMux/router.
func (h *ChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatCompletionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if verr := validateChatCompletionRequest(&req); verr != nil {
		WriteGatewayError(w, verr, h.logger)
		return
	}

	apiKey := bearerToken(r)
	gwReq := req.ToGatewayRequest(h.idgen.NewID(), apiKey)

	if req.Stream {
		h.serveStream(w, r, gwReq)
		return
	}
	h.serveOnce(w, r, gwReq)
}

func (h *ChatCompletionsHandler) serveOnce(w http.ResponseWriter, r *http.Request, gwReq *gateway.GatewayRequest) {
	resp, err := h.dispatcher.Dispatch(r.Context(), gwReq)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, api.FromGatewayResponse(resp))
}

func (h *ChatCompletionsHandler) serveStream(w http.ResponseWriter, r *http.Request, gwReq *gateway.GatewayRequest) {
	events, err := h.dispatcher.DispatchStream(r.Context(), gwReq)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeDispatchError(w, gwerr.New(gwerr.KindInternal, "", "streaming not supported by response writer"))
		return
	}

	for ev := range events {
		if ev.Err != nil {
			h.logger.Error("stream error", zap.Error(ev.Err))
			writeSSEError(w, ev.Err)
			flusher.Flush()
			return
		}
		writeSSEChunk(w, api.FromGatewayChunk(gwReq.Model, ev.Chunk))
		flusher.Flush()
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func (h *ChatCompletionsHandler) writeDispatchError(w http.ResponseWriter, err error) {
	if gerr, ok := gwerr.As(err); ok {
		WriteGatewayError(w, gerr, h.logger)
		return
	}
	WriteGatewayError(w, gwerr.New(gwerr.KindInternal, "", err.Error()).WithCause(err), h.logger)
}

func writeSSEChunk(w http.ResponseWriter, chunk *api.ChatCompletionChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

func writeSSEError(w http.ResponseWriter, err *gwerr.Error) {
	payload, _ := json.Marshal(err.ToEnvelope())
	w.Write([]byte("event: error\ndata: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

func validateChatCompletionRequest(req *api.ChatCompletionRequest) *gwerr.Error {
	if req.Model == "" {
		return gwerr.New(gwerr.KindInvalidRequest, "", "model is required")
	}
	if len(req.Messages) == 0 {
		return gwerr.New(gwerr.KindInvalidRequest, "", "messages cannot be empty")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return gwerr.New(gwerr.KindInvalidRequest, "", "temperature must be between 0 and 2")
	}
	if req.TopP < 0 || req.TopP > 1 {
		return gwerr.New(gwerr.KindInvalidRequest, "", "top_p must be between 0 and 1")
	}
	return nil
}

// bearerToken extracts the Authorization: Bearer <key> header (spec §6.1's
// "Bearer token" authn dialect); empty if absent, letting the deployment's
// own configured key be used instead (see (*Adapter).resolveAPIKeyGW).
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
