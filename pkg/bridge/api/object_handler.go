package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// ObjectHandler serves blob store listings and objects
type ObjectHandler struct {
	service bridge.Service
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(service bridge.Service) *ObjectHandler {
	return &ObjectHandler{service: service}
}

// Routes returns the routes for blob store objects
func (h *ObjectHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/objects", h.ListObjects)
	// Keys may contain slashes
	r.Get("/object/*", h.GetObject)

	return r
}

// ListObjects lists objects under an optional prefix
func (h *ObjectHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	maxKeys, _ := strconv.Atoi(query.Get("maxKeys"))

	list, err := h.service.ListObjects(r.Context(), bridge.ListObjectsRequest{
		Prefix:            query.Get("prefix"),
		MaxKeys:           maxKeys,
		ContinuationToken: query.Get("continuationToken"),
	})
	if err != nil {
		writeError(w, r, err, errorMessages{failed: "Failed to list objects from S3"})
		return
	}

	objects := list.Objects
	if objects == nil {
		objects = []bridge.ObjectSummary{}
	}

	render.JSON(w, r, Response{
		Success:               true,
		Data:                  objects,
		NextContinuationToken: list.NextContinuationToken,
	})
}

// GetObject returns one object, streamed or base64 encoded
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	messages := errorMessages{
		failed:   "Failed to get object from S3",
		notFound: "Object not found in S3 bucket",
	}

	// chi matches on the escaped path only when RawPath is set
	key := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			writeBadRequest(w, r, "Invalid object key")
			return
		}
		key = unescaped
	}

	payload, err := h.service.GetObject(r.Context(), key)
	if err != nil {
		writeError(w, r, err, messages)
		return
	}

	writePayload(w, r, payload, messages)
}
