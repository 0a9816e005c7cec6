package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// TransferInRequest is the request body for POST /bridge/s3-to-ipfs
type TransferInRequest struct {
	S3Key string `json:"s3Key"`
}

// TransferOutRequest is the request body for POST /bridge/ipfs-to-s3
type TransferOutRequest struct {
	IPFSCid string `json:"ipfsCid"`
	S3Key   string `json:"s3Key"`
}

// MappingResponse is a mapping record with its gateway URL
type MappingResponse struct {
	*bridge.MappingRecord
	IPFSUrl string `json:"ipfsUrl,omitempty"`
}

// TransferOutResponse is the response data for a completed transfer-out
type TransferOutResponse struct {
	IPFSCid   string                `json:"ipfsCid"`
	S3Key     string                `json:"s3Key"`
	S3Uri     string                `json:"s3Uri,omitempty"`
	S3Url     string                `json:"s3Url,omitempty"`
	ETag      string                `json:"eTag,omitempty"`
	VersionID string                `json:"versionId,omitempty"`
	Size      int64                 `json:"size"`
	Mapping   *bridge.MappingRecord `json:"mapping"`
}

// BridgeHandler handles transfer and mapping requests
type BridgeHandler struct {
	service bridge.Service
}

// NewBridgeHandler creates a new bridge handler
func NewBridgeHandler(service bridge.Service) *BridgeHandler {
	return &BridgeHandler{service: service}
}

// Routes returns the routes for the bridge
func (h *BridgeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/s3-to-ipfs", h.TransferIn)
	r.Post("/ipfs-to-s3", h.TransferOut)
	r.Get("/mappings", h.ListMappings)
	r.Get("/mapping/{id}", h.GetMapping)

	return r
}

// TransferIn copies an S3 object to IPFS
func (h *BridgeHandler) TransferIn(w http.ResponseWriter, r *http.Request) {
	var req TransferInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "Invalid request body")
		return
	}

	result, err := h.service.TransferIn(r.Context(), bridge.TransferInRequest{BlobKey: req.S3Key})
	if err != nil {
		writeError(w, r, err, errorMessages{
			failed:   "Failed to upload from S3 to IPFS",
			notFound: "Object not found in S3 bucket",
		})
		return
	}

	message := "File successfully uploaded from S3 to IPFS"
	if result.Existing {
		message = "File already uploaded to IPFS"
	}

	render.JSON(w, r, Response{
		Success: true,
		Message: message,
		Data:    MappingResponse{MappingRecord: result.Record, IPFSUrl: result.ContentURL},
	})
}

// TransferOut copies IPFS content to S3
func (h *BridgeHandler) TransferOut(w http.ResponseWriter, r *http.Request) {
	var req TransferOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "Invalid request body")
		return
	}

	result, err := h.service.TransferOut(r.Context(), bridge.TransferOutRequest{
		ContentID: req.IPFSCid,
		BlobKey:   req.S3Key,
	})
	if err != nil {
		writeError(w, r, err, errorMessages{
			failed:   "Failed to download from IPFS to S3",
			notFound: "File not found on IPFS",
		})
		return
	}

	render.JSON(w, r, Response{
		Success: true,
		Message: "File successfully downloaded from IPFS to S3",
		Data: TransferOutResponse{
			IPFSCid:   result.Record.ContentID,
			S3Key:     result.Record.BlobKey,
			S3Uri:     result.ObjectURI,
			S3Url:     result.Location,
			ETag:      result.ETag,
			VersionID: result.VersionID,
			Size:      result.Size,
			Mapping:   result.Record,
		},
	})
}

// ListMappings returns a page of mappings, newest first
func (h *BridgeHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	// Unparseable values fall back to defaults
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.service.ListMappings(r.Context(), bridge.ListMappingsRequest{Page: page, Limit: limit})
	if err != nil {
		writeError(w, r, err, errorMessages{failed: "Failed to get mappings"})
		return
	}

	records := result.Records
	if records == nil {
		records = []*bridge.MappingRecord{}
	}

	render.JSON(w, r, Response{
		Success: true,
		Data:    records,
		Pagination: &Pagination{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
			Pages: result.Pages,
		},
	})
}

// GetMapping returns a mapping by ID
func (h *BridgeHandler) GetMapping(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetMapping(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, errorMessages{
			failed:   "Failed to get mapping",
			notFound: "Mapping not found",
		})
		return
	}

	render.JSON(w, r, Response{Success: true, Data: record})
}
