package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
	contentmemory "github.com/tendant/s3-ipfs-bridge/pkg/bridge/contentstore/memory"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/repo/memory"
	storagememory "github.com/tendant/s3-ipfs-bridge/pkg/bridge/storage/memory"
)

type testEnv struct {
	router  http.Handler
	blobs   *storagememory.Backend
	content *contentmemory.Backend
	reg     *prometheus.Registry
}

// setupRouterTest creates a router over in-memory stores for testing
func setupRouterTest(t *testing.T) *testEnv {
	blobs := storagememory.New("test-bucket")
	content := contentmemory.New("https://gateway.test")

	service, err := bridge.New(
		bridge.WithRepository(memory.New()),
		bridge.WithBlobStore(blobs),
		bridge.WithContentStore(content),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	httpMetrics, err := NewHTTPMetrics(reg)
	require.NoError(t, err)

	return &testEnv{
		router:  NewRouter(service, WithHTTPMetrics(httpMetrics), WithMetricsEndpoint(reg)),
		blobs:   blobs,
		content: content,
		reg:     reg,
	}
}

func (e *testEnv) putObject(t *testing.T, key, body, contentType string) {
	_, err := e.blobs.Put(context.Background(), key, strings.NewReader(body), bridge.PutOptions{ContentType: contentType})
	require.NoError(t, err)
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	env := setupRouterTest(t)

	w, resp := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestTransferIn_NewThenExisting(t *testing.T) {
	env := setupRouterTest(t)
	env.putObject(t, "docs/report.pdf", "%PDF-1.4 test", "application/pdf")

	w, resp := env.do(t, http.MethodPost, "/bridge/s3-to-ipfs", TransferInRequest{S3Key: "docs/report.pdf"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "File successfully uploaded from S3 to IPFS", resp["message"])

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "docs/report.pdf", data["s3Key"])
	assert.Equal(t, "report.pdf", data["name"])
	assert.Equal(t, "application/pdf", data["mimeType"])
	cid := data["ipfsCid"].(string)
	assert.Equal(t, "https://gateway.test/ipfs/"+cid, data["ipfsUrl"])

	// Second call under /api returns the stored mapping
	w, resp = env.do(t, http.MethodPost, "/api/bridge/s3-to-ipfs", TransferInRequest{S3Key: "docs/report.pdf"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File already uploaded to IPFS", resp["message"])
	assert.Equal(t, cid, resp["data"].(map[string]interface{})["ipfsCid"])
}

func TestTransferIn_Errors(t *testing.T) {
	env := setupRouterTest(t)

	w, resp := env.do(t, http.MethodPost, "/bridge/s3-to-ipfs", TransferInRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, resp["success"])

	w, resp = env.do(t, http.MethodPost, "/bridge/s3-to-ipfs", TransferInRequest{S3Key: "missing.txt"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Object not found in S3 bucket", resp["message"])

	req := httptest.NewRequest(http.MethodPost, "/bridge/s3-to-ipfs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferOut_CreatesObjectAndMapping(t *testing.T) {
	env := setupRouterTest(t)
	cid, err := env.content.Put([]byte("hello ipfs"), "text/plain")
	require.NoError(t, err)

	w, resp := env.do(t, http.MethodPost, "/bridge/ipfs-to-s3", TransferOutRequest{IPFSCid: cid, S3Key: "out/hello.txt"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File successfully downloaded from IPFS to S3", resp["message"])

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, cid, data["ipfsCid"])
	assert.Equal(t, "out/hello.txt", data["s3Key"])
	assert.Equal(t, float64(len("hello ipfs")), data["size"])
	assert.NotEmpty(t, data["eTag"])
	assert.Equal(t, "memory://test-bucket/out/hello.txt", data["s3Uri"])

	meta, err := env.blobs.Head(context.Background(), "out/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, cid, meta.Metadata["ipfs-cid"])
}

func TestTransferOut_Conflict(t *testing.T) {
	env := setupRouterTest(t)
	cid, err := env.content.Put([]byte("shared"), "text/plain")
	require.NoError(t, err)

	w, _ := env.do(t, http.MethodPost, "/bridge/ipfs-to-s3", TransferOutRequest{IPFSCid: cid, S3Key: "a.txt"})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodPost, "/bridge/ipfs-to-s3", TransferOutRequest{IPFSCid: cid, S3Key: "b.txt"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CID already mapped to a different S3 key", resp["message"])
	assert.Contains(t, resp["error"], `already mapped to "a.txt"`)
	assert.Equal(t, "a.txt", resp["data"].(map[string]interface{})["s3Key"])

	_, err = env.blobs.Head(context.Background(), "b.txt")
	assert.ErrorIs(t, err, bridge.ErrObjectNotFound)

	other, err := env.content.Put([]byte("other"), "text/plain")
	require.NoError(t, err)
	w, resp = env.do(t, http.MethodPost, "/bridge/ipfs-to-s3", TransferOutRequest{IPFSCid: other, S3Key: "a.txt"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "S3 key already mapped to a different CID", resp["message"])
	assert.Contains(t, resp["error"], `key "a.txt" is already mapped to content `+cid)
	assert.Equal(t, cid, resp["data"].(map[string]interface{})["ipfsCid"])
}

func TestTransferOut_InvalidCID(t *testing.T) {
	env := setupRouterTest(t)

	w, resp := env.do(t, http.MethodPost, "/bridge/ipfs-to-s3", TransferOutRequest{IPFSCid: "not-a-cid", S3Key: "a.txt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, resp["success"])

	w, resp = env.do(t, http.MethodPost, "/bridge/ipfs-to-s3", TransferOutRequest{S3Key: "a.txt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "IPFS CID and S3 Key are required", resp["message"])
	assert.NotEmpty(t, resp["error"])
}

func TestMappings_ListAndGet(t *testing.T) {
	env := setupRouterTest(t)
	for _, key := range []string{"one.txt", "two.txt", "three.txt"} {
		env.putObject(t, key, "body of "+key, "text/plain")
		w, _ := env.do(t, http.MethodPost, "/bridge/s3-to-ipfs", TransferInRequest{S3Key: key})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, resp := env.do(t, http.MethodGet, "/bridge/mappings?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := resp["data"].([]interface{})
	assert.Len(t, records, 2)
	pagination := resp["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["pages"])

	id := records[0].(map[string]interface{})["id"].(string)
	w, resp = env.do(t, http.MethodGet, "/bridge/mapping/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, resp["data"].(map[string]interface{})["id"])

	w, resp = env.do(t, http.MethodGet, "/bridge/mapping/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Mapping not found", resp["message"])

	w, _ = env.do(t, http.MethodGet, "/bridge/mapping/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMappings_EmptyList(t *testing.T) {
	env := setupRouterTest(t)

	w, resp := env.do(t, http.MethodGet, "/api/bridge/mappings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp["data"])
	pagination := resp["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(10), pagination["limit"])
	assert.Equal(t, float64(0), pagination["pages"])
}

func TestObjects_ListAndGet(t *testing.T) {
	env := setupRouterTest(t)
	env.putObject(t, "docs/a.txt", "alpha", "text/plain")
	env.putObject(t, "docs/b.txt", "beta", "text/plain")
	env.putObject(t, "other.txt", "other", "text/plain")

	w, resp := env.do(t, http.MethodGet, "/s3/objects?prefix=docs/&maxKeys=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	objects := resp["data"].([]interface{})
	require.Len(t, objects, 1)
	assert.Equal(t, "docs/a.txt", objects[0].(map[string]interface{})["Key"])
	assert.NotEmpty(t, resp["nextContinuationToken"])

	w, resp = env.do(t, http.MethodGet, "/s3/object/docs/a.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "YWxwaGE=", data["body"])
	assert.Equal(t, "text/plain", data["contentType"])
	assert.Equal(t, float64(5), data["contentLength"])

	w, _ = env.do(t, http.MethodGet, "/s3/object/docs/a.txt?format=stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alpha", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "5", w.Header().Get("Content-Length"))

	w, resp = env.do(t, http.MethodGet, "/s3/object/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Object not found in S3 bucket", resp["message"])
}

func TestObjects_GetEscapedKeys(t *testing.T) {
	env := setupRouterTest(t)

	tests := []struct {
		key  string
		path string
	}{
		{key: "100%.txt", path: "/s3/object/100%25.txt"},
		{key: "a%2Bb.txt", path: "/s3/object/a%252Bb.txt"},
		{key: "a+b.txt", path: "/s3/object/a+b.txt"},
		{key: "dir/a b.txt", path: "/s3/object/dir/a%20b.txt"},
		{key: "x/y.txt", path: "/s3/object/x%2Fy.txt"},
	}
	for _, tt := range tests {
		env.putObject(t, tt.key, "body of "+tt.key, "text/plain")
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			w, _ := env.do(t, http.MethodGet, tt.path+"?format=stream", nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "body of "+tt.key, w.Body.String())
		})
	}
}

func TestContent_GetFile(t *testing.T) {
	env := setupRouterTest(t)
	cid, err := env.content.Put([]byte("ipfs bytes"), "text/plain")
	require.NoError(t, err)

	w, _ := env.do(t, http.MethodGet, "/ipfs/file/"+cid+"?format=stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ipfs bytes", w.Body.String())

	w, resp := env.do(t, http.MethodGet, "/api/ipfs/file/"+cid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(len("ipfs bytes")), resp["data"].(map[string]interface{})["contentLength"])

	missing, err := contentmemory.Sum([]byte("never stored"))
	require.NoError(t, err)
	w, resp = env.do(t, http.MethodGet, "/ipfs/file/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found on IPFS", resp["message"])

	w, _ = env.do(t, http.MethodGet, "/ipfs/file/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupRouterTest(t)
	env.do(t, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `bridge_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
