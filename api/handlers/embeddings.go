package handlers

import (
	"net/http"

	"github.com/BaSui01/agentflow/api"
	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/gwerr"
	"go.uber.org/zap"
)

// EmbeddingsHandler serves the OpenAI-compatible /v1/embeddings surface
// (spec §6.1), dispatching through gateway.Dispatcher the same way
// ChatCompletionsHandler does for chat — routing, health-filtering and
// fallback classification are shared across request kinds (spec §4).
type EmbeddingsHandler struct {
	dispatcher *gateway.Dispatcher
	idgen      gateway.IDGen
	logger     *zap.Logger
}

func NewEmbeddingsHandler(dispatcher *gateway.Dispatcher, idgen gateway.IDGen, logger *zap.Logger) *EmbeddingsHandler {
	if idgen == nil {
		idgen = gateway.UUIDGen{}
	}
	return &EmbeddingsHandler{dispatcher: dispatcher, idgen: idgen, logger: logger}
}

func (h *EmbeddingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.EmbeddingRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Model == "" {
		WriteGatewayError(w, gwerr.New(gwerr.KindInvalidRequest, "", "model is required"), h.logger)
		return
	}
	if len(req.Input) == 0 {
		WriteGatewayError(w, gwerr.New(gwerr.KindInvalidRequest, "", "input cannot be empty"), h.logger)
		return
	}

	gwReq := &gateway.GatewayRequest{
		RequestID: h.idgen.NewID(),
		Kind:      gateway.KindEmbedding,
		Model:     req.Model,
		APIKey:    bearerToken(r),
		Embedding: &gateway.EmbeddingPayload{Input: req.Input},
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), gwReq)
	if err != nil {
		if gerr, ok := gwerr.As(err); ok {
			WriteGatewayError(w, gerr, h.logger)
			return
		}
		WriteGatewayError(w, gwerr.New(gwerr.KindInternal, "", err.Error()).WithCause(err), h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.FromGatewayEmbeddingResponse(resp))
}
