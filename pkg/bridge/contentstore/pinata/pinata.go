package pinata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

const (
	DefaultUploadURL  = "https://uploads.pinata.cloud/v3/files"
	DefaultGatewayURL = "https://gateway.pinata.cloud"
	DefaultNetwork    = "public"

	// errorBodyLimit bounds how much of an error response is quoted back
	errorBodyLimit = 4 << 10
)

// Config options for the Pinata content store
type Config struct {
	JWT          string // Pinata API JWT
	UploadURL    string // Files API endpoint
	GatewayURL   string // IPFS gateway base, with or without scheme
	GatewayToken string // Optional dedicated gateway access token
	Network      string // "public" or "private"
	HTTPClient   *http.Client
}

// Client is a Pinata implementation of the bridge.ContentStore interface.
// Uploads go through the Files API; reads go through the IPFS gateway.
type Client struct {
	httpClient   *http.Client
	jwt          string
	uploadURL    string
	gatewayURL   string
	gatewayToken string
	network      string
}

// New creates a new Pinata client
func New(config Config) (*Client, error) {
	if config.JWT == "" {
		return nil, errors.New("pinata JWT is required")
	}
	if config.UploadURL == "" {
		config.UploadURL = DefaultUploadURL
	}
	if config.GatewayURL == "" {
		config.GatewayURL = DefaultGatewayURL
	}
	if config.Network == "" {
		config.Network = DefaultNetwork
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	gatewayURL, err := normalizeGatewayURL(config.GatewayURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient:   config.HTTPClient,
		jwt:          config.JWT,
		uploadURL:    config.UploadURL,
		gatewayURL:   gatewayURL,
		gatewayToken: config.GatewayToken,
		network:      config.Network,
	}, nil
}

// normalizeGatewayURL accepts "gateway.pinata.cloud" as well as a full URL.
func normalizeGatewayURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid gateway URL %q", raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

type uploadResponse struct {
	Data struct {
		ID            string    `json:"id"`
		Name          string    `json:"name"`
		CID           string    `json:"cid"`
		Size          int64     `json:"size"`
		NumberOfFiles int       `json:"number_of_files"`
		MimeType      string    `json:"mime_type"`
		Network       string    `json:"network"`
		CreatedAt     time.Time `json:"created_at"`
	} `json:"data"`
}

// Upload streams body to the Files API as a multipart form
func (c *Client) Upload(ctx context.Context, body io.Reader, opts bridge.UploadOptions) (*bridge.UploadResult, error) {
	name := opts.Name
	if name == "" {
		name = "file"
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = bridge.DefaultContentType
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(form, body, name, contentType, c.network, opts))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinata upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinata upload failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode pinata upload response: %w", err)
	}
	if out.Data.CID == "" {
		return nil, errors.New("pinata upload response has no cid")
	}

	result := &bridge.UploadResult{
		ContentID: out.Data.CID,
		StoreID:   out.Data.ID,
		Name:      out.Data.Name,
		Size:      out.Data.Size,
		MimeType:  out.Data.MimeType,
		FileCount: out.Data.NumberOfFiles,
		Network:   out.Data.Network,
	}
	if !out.Data.CreatedAt.IsZero() {
		createdAt := out.Data.CreatedAt.UTC()
		result.CreatedAt = &createdAt
	}
	return result, nil
}

func writeUploadForm(form *multipart.Writer, body io.Reader, name, contentType, network string, opts bridge.UploadOptions) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": name,
	}))
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}

	if err := form.WriteField("name", name); err != nil {
		return err
	}
	if err := form.WriteField("network", network); err != nil {
		return err
	}
	if opts.OriginalSource != "" {
		keyvalues, err := json.Marshal(map[string]string{"originalSource": opts.OriginalSource})
		if err != nil {
			return err
		}
		if err := form.WriteField("keyvalues", string(keyvalues)); err != nil {
			return err
		}
	}

	return form.Close()
}

// Fetch streams content from the gateway
func (c *Client) Fetch(ctx context.Context, contentID string) (*bridge.Payload, error) {
	fetchURL := c.GatewayURL(contentID)
	if c.gatewayToken != "" {
		fetchURL += "?pinataGatewayToken=" + url.QueryEscape(c.gatewayToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, bridge.ErrContentNotFound
	case resp.StatusCode != http.StatusOK:
		defer resp.Body.Close()
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	return &bridge.Payload{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// GatewayURL returns gateway/ipfs/cid
func (c *Client) GatewayURL(contentID string) string {
	return c.gatewayURL + "/ipfs/" + contentID
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, errorBodyLimit))
	return strings.TrimSpace(string(data))
}
