package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// Response is the envelope returned by every bridge endpoint
type Response struct {
	Success               bool        `json:"success"`
	Message               string      `json:"message,omitempty"`
	Data                  interface{} `json:"data,omitempty"`
	Error                 string      `json:"error,omitempty"`
	Pagination            *Pagination `json:"pagination,omitempty"`
	NextContinuationToken string      `json:"nextContinuationToken,omitempty"`
}

// Pagination describes a page of mapping records
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// PayloadResponse is the JSON form of an object or content payload. Body is
// base64 encoded by encoding/json.
type PayloadResponse struct {
	Body          []byte            `json:"body"`
	ContentType   string            `json:"contentType"`
	ContentLength int64             `json:"contentLength"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastModified  *time.Time        `json:"lastModified,omitempty"`
}

// errorMessages are the client-facing messages for one endpoint
type errorMessages struct {
	failed   string
	notFound string
}

const (
	contentConflictMessage = "CID already mapped to a different S3 key"
	keyConflictMessage     = "S3 key already mapped to a different CID"
)

// statusFor maps an error kind to an HTTP status code
func statusFor(kind bridge.Kind) int {
	switch kind {
	case bridge.KindValidation:
		return http.StatusBadRequest
	case bridge.KindNotFound:
		return http.StatusNotFound
	case bridge.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, messages errorMessages) {
	kind := bridge.KindOf(err)
	status := statusFor(kind)
	resp := Response{Success: false, Message: messages.failed, Error: err.Error()}

	switch kind {
	case bridge.KindValidation:
		var verr *bridge.ValidationError
		if errors.As(err, &verr) {
			resp.Message = verr.Message
		}
	case bridge.KindNotFound:
		if messages.notFound != "" {
			resp.Message = messages.notFound
		}
	case bridge.KindConflict:
		resp.Message = contentConflictMessage
		var cerr *bridge.ConflictError
		if errors.As(err, &cerr) && cerr.Existing != nil {
			if cerr.Existing.BlobKey == cerr.RequestedBlobKey {
				resp.Message = keyConflictMessage
			}
			resp.Data = cerr.Existing
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error(messages.failed, "path", r.URL.Path, "kind", kind.String(), "err", err)
	} else {
		slog.Warn(messages.failed, "path", r.URL.Path, "kind", kind.String(), "err", err)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, Response{Success: false, Message: message})
}

// writePayload streams the payload when format=stream is requested and
// otherwise returns it base64 encoded in the JSON envelope.
func writePayload(w http.ResponseWriter, r *http.Request, payload *bridge.Payload, messages errorMessages) {
	defer payload.Body.Close()

	contentType := payload.ContentType
	if contentType == "" {
		contentType = bridge.DefaultContentType
	}

	if r.URL.Query().Get("format") == "stream" {
		w.Header().Set("Content-Type", contentType)
		if payload.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(payload.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, payload.Body); err != nil {
			slog.Warn("Payload stream interrupted", "path", r.URL.Path, "err", err)
		}
		return
	}

	data, err := io.ReadAll(payload.Body)
	if err != nil {
		writeError(w, r, err, messages)
		return
	}

	render.JSON(w, r, Response{
		Success: true,
		Data: PayloadResponse{
			Body:          data,
			ContentType:   contentType,
			ContentLength: int64(len(data)),
			Metadata:      payload.Metadata,
			LastModified:  payload.LastModified,
		},
	})
}
