// Package upload is a pass-through client for the external image-hosting
// service: it posts a multipart file payload plus an upload preset and
// stores nothing but the returned public URL. Retry and size policy are
// the collaborator's business, not ours.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// Config holds configuration for creating a Client.
type Config struct {
	// CloudName is the hosting account identifier; it forms the upload URL.
	CloudName string

	// Preset is the unsigned upload preset sent with every file.
	Preset string

	// BaseURL overrides the hosting service root. Defaults to the public
	// API; tests point it at a local server.
	BaseURL string

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

const defaultBaseURL = "https://api.cloudinary.com"

// Client uploads images and returns their hosted URLs.
type Client struct {
	uploadURL  string
	preset     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an image-upload client.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.CloudName) == "" {
		return nil, fmt.Errorf("upload: missing cloud name")
	}
	preset := strings.TrimSpace(config.Preset)
	if preset == "" {
		preset = "ml_default"
	}
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		uploadURL:  fmt.Sprintf("%s/v1_1/%s/image/upload", base, config.CloudName),
		preset:     preset,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Image uploads one file and returns its publicly addressable URL.
func (client *Client) Image(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if err := form.WriteField("upload_preset", client.preset); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(form.Close())
	}()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.uploadURL, pr)
	if err != nil {
		return "", fmt.Errorf("upload: creating request: %w", err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())

	response, err := client.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("upload: reading response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		client.logger.Debug("upload rejected", "status", response.StatusCode)
		return "", fmt.Errorf("upload: HTTP %d: %s", response.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("upload: decoding response: %w", err)
	}
	hosted := out.SecureURL
	if hosted == "" {
		hosted = out.URL
	}
	if hosted == "" {
		return "", fmt.Errorf("upload: response carried no url")
	}
	return hosted, nil
}
