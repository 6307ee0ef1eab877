// Package hosting uploads image payloads to ImgBB and returns their public URLs.
package hosting

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"retouch/internal/domain"
	"retouch/internal/infra"
)

// Payload is a captured upload: the full image bytes plus a display filename.
// It is a plain buffer rather than a stream so the bytes can only ever reach
// the transport once and in full.
type Payload struct {
	Data     []byte
	Filename string
}

// Artifact is a successfully hosted image.
type Artifact struct {
	URL string
}

// Options configures the ImgBB client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the ImgBB upload API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.imgbb.com"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

type uploadResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
		DeleteURL  string `json:"delete_url"`
	} `json:"data"`
	// ImgBB reports errors either as {"message": ...} or as a bare string.
	Error json.RawMessage `json:"error"`
}

func (r uploadResponse) errorMessage() string {
	if len(r.Error) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return ""
}

// Upload sends the payload to ImgBB and returns the hosted artifact. It makes
// exactly one outbound call and never retries; retry policy belongs to the
// caller.
func (c *Client) Upload(ctx context.Context, p Payload) (*Artifact, error) {
	if !c.HasCredentials() {
		return nil, fmt.Errorf("%w: IMGBB_API_KEY is not set", domain.ErrConfiguration)
	}
	if len(p.Data) == 0 {
		return nil, errors.New("hosting: empty payload")
	}

	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(p.Data))
	if name := strings.TrimSpace(p.Filename); name != "" {
		form.Set("name", name)
	}

	endpoint := c.baseURL + "/1/upload?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("hosting: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: imgbb upload: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload response: %v", domain.ErrNetwork, err)
	}

	var decoded uploadResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= 300 {
		if decodeErr == nil {
			if msg := decoded.errorMessage(); msg != "" {
				return nil, fmt.Errorf("%w: %s", domain.ErrUploadRejected, msg)
			}
		}
		return nil, fmt.Errorf("%w: imgbb returned status %d", domain.ErrUploadRejected, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode upload response: %v", domain.ErrProtocol, decodeErr)
	}
	if !decoded.Success {
		if msg := decoded.errorMessage(); msg != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrUploadRejected, msg)
		}
		return nil, fmt.Errorf("%w: imgbb reported failure", domain.ErrUploadRejected)
	}
	hosted := strings.TrimSpace(decoded.Data.URL)
	if hosted == "" {
		return nil, fmt.Errorf("%w: upload succeeded without a url", domain.ErrProtocol)
	}

	c.logger.Debug().
		Str("url", hosted).
		Int("bytes", len(p.Data)).
		Msg("hosting: image uploaded")
	return &Artifact{URL: hosted}, nil
}
