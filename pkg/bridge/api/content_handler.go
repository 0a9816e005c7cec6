package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// ContentHandler serves content store payloads by CID
type ContentHandler struct {
	service bridge.Service
}

// NewContentHandler creates a new content handler
func NewContentHandler(service bridge.Service) *ContentHandler {
	return &ContentHandler{service: service}
}

// Routes returns the routes for content
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/file/{cid}", h.GetFile)

	return r
}

// GetFile returns the content for a CID, streamed or base64 encoded
func (h *ContentHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	messages := errorMessages{
		failed:   "Failed to get file from IPFS",
		notFound: "File not found on IPFS",
	}

	payload, err := h.service.GetContent(r.Context(), chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, r, err, messages)
		return
	}

	writePayload(w, r, payload, messages)
}
