// Package tns talks to the Transient Name Server: search, object fetch, file
// upload, and bulk reports, with the rate-limit backoff TNS requires of bots.
package tns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"transient-broker/backend/internal/metrics"
)

const (
	searchPath = "/api/get/search"
	objectPath = "/api/get/object"
	uploadPath = "/api/file-upload"
	reportPath = "/api/bulk-report"

	// maxAttempts bounds rate-limited retries: after this many 429 responses the
	// call fails with ErrRateExceeded.
	maxAttempts = 5

	timeLayout = "2006-01-02 15:04:05"
)

// ErrRateExceeded is returned when TNS keeps answering 429 through every retry.
// It is distinguishable from transport failures and APIError rejections.
var ErrRateExceeded = errors.New("TNS request rate exceeded")

// APIError is a non-200, non-429 TNS response. Body carries the raw response
// text as diagnostic.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TNS returned status %d: %s", e.StatusCode, e.Body)
}

// Marker identifies the calling bot to TNS. It is sent on every request as the
// structured User-Agent header TNS requires.
type Marker struct {
	BotID   int
	BotName string
}

// UserAgent renders the tns_marker header value.
func (m Marker) UserAgent() string {
	return fmt.Sprintf(`tns_marker{"tns_id":%d,"type":"bot","name":"%s"}`, m.BotID, m.BotName)
}

// ClientConfig configures the wire client.
type ClientConfig struct {
	BaseURL       string
	FetchTimeout  time.Duration // search and object fetch; default 10s
	ReportTimeout time.Duration // file upload and bulk report; default 30s
	RetryWait     time.Duration // sleep between rate-limited attempts; default 30s
	Logger        *zap.Logger
}

// Client performs authenticated calls against one TNS deployment. It is
// stateless apart from its HTTP clients and safe for concurrent use.
type Client struct {
	baseURL      string
	fetchClient  *http.Client
	reportClient *http.Client
	retryWait    time.Duration
	logger       *zap.Logger
}

// NewClient creates a TNS wire client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("tns base url must not be empty")
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	reportTimeout := cfg.ReportTimeout
	if reportTimeout <= 0 {
		reportTimeout = 30 * time.Second
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		fetchClient:  &http.Client{Timeout: fetchTimeout},
		reportClient: &http.Client{Timeout: reportTimeout},
		retryWait:    retryWait,
		logger:       logger,
	}, nil
}

// SearchRecent queries the TNS search endpoint for objects with a public
// timestamp at or after since. Zero upstream matches yield an empty slice, not
// an error; whether that is a problem is the caller's policy.
func (c *Client) SearchRecent(ctx context.Context, apiKey string, marker Marker, since time.Time) ([]SearchResult, error) {
	body, err := c.postForm(ctx, c.fetchClient, searchPath, apiKey, marker, map[string]string{
		"public_timestamp": since.UTC().Format(timeLayout),
	})
	if err != nil {
		return nil, err
	}
	var env struct {
		Data struct {
			Reply []SearchResult `json:"reply"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode search reply: %w", err)
	}
	return env.Data.Reply, nil
}

// ResolveQuery selects how to look up a TNS name: by known object name, or by
// a small cone search around coordinates.
type ResolveQuery struct {
	ObjName string
	RA      float64
	Dec     float64
}

// ResolveName looks up the TNS-assigned name for the query. A miss returns
// ("", "", nil): the object is not yet registered on TNS, which is not a
// transport failure.
func (c *Client) ResolveName(ctx context.Context, apiKey string, marker Marker, q ResolveQuery) (prefix, name string, err error) {
	data := map[string]string{}
	if q.ObjName != "" {
		data["objname"] = q.ObjName
	} else {
		data["ra"] = strconv.FormatFloat(q.RA, 'f', -1, 64)
		data["dec"] = strconv.FormatFloat(q.Dec, 'f', -1, 64)
		data["radius"] = "2"
		data["units"] = "arcsec"
	}
	body, err := c.postForm(ctx, c.fetchClient, searchPath, apiKey, marker, data)
	if err != nil {
		return "", "", err
	}
	var env struct {
		Data struct {
			Reply []SearchResult `json:"reply"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", fmt.Errorf("decode name reply: %w", err)
	}
	if len(env.Data.Reply) == 0 {
		return "", "", nil
	}
	return env.Data.Reply[0].Prefix, env.Data.Reply[0].ObjName, nil
}

// FetchObject fetches the full TNS record for tnsName, optionally including
// photometry and spectra. A 200 with an empty reply payload returns (nil, nil):
// success with nothing to do.
func (c *Client) FetchObject(ctx context.Context, apiKey string, marker Marker, tnsName string, wantPhotometry, wantSpectra bool) (*ObjectReply, error) {
	body, err := c.postForm(ctx, c.fetchClient, objectPath, apiKey, marker, map[string]string{
		"objname":    tnsName,
		"photometry": boolFlag(wantPhotometry),
		"spectra":    boolFlag(wantSpectra),
	})
	if err != nil {
		return nil, err
	}
	var env struct {
		Data struct {
			Reply json.RawMessage `json:"reply"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode object reply: %w", err)
	}
	raw := bytes.TrimSpace(env.Data.Reply)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" || string(raw) == "[]" {
		return nil, nil
	}
	var reply ObjectReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode object reply: %w", err)
	}
	reply.Raw = json.RawMessage(raw)
	return &reply, nil
}

// UploadFile uploads a report artifact (e.g. a classification spectrum) to TNS.
func (c *Client) UploadFile(ctx context.Context, apiKey string, marker Marker, filename string, content []byte, contentType string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("api_key", apiKey); err != nil {
		return err
	}
	part, err := w.CreateFormFile("files[]", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	raw := buf.Bytes()
	_, err = c.post(ctx, c.reportClient, uploadPath, bytes.NewReader(raw), w.FormDataContentType(), marker,
		func() io.Reader { return bytes.NewReader(raw) })
	return err
}

// BulkReport submits a structured bulk report and returns the TNS report ID.
func (c *Client) BulkReport(ctx context.Context, apiKey string, marker Marker, report any) (int64, error) {
	body, err := c.postForm(ctx, c.reportClient, reportPath, apiKey, marker, report)
	if err != nil {
		return 0, err
	}
	var env struct {
		Data struct {
			ReportID int64 `json:"report_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, fmt.Errorf("decode report reply: %w", err)
	}
	return env.Data.ReportID, nil
}

// postForm sends api_key plus a JSON-encoded data field as a form POST.
func (c *Client) postForm(ctx context.Context, hc *http.Client, path, apiKey string, marker Marker, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode request data: %w", err)
	}
	form := url.Values{}
	form.Set("api_key", apiKey)
	form.Set("data", string(payload))
	body := form.Encode()
	return c.post(ctx, hc, path, strings.NewReader(body), "application/x-www-form-urlencoded", marker,
		func() io.Reader { return strings.NewReader(body) })
}

// post performs one TNS call with the uniform rate-limit policy: on 429, sleep
// and retry up to maxAttempts total attempts, then fail with ErrRateExceeded.
// Any other non-200 status is terminal for the call. Network errors propagate
// untouched; only explicit rate-limit signaling is retried.
func (c *Client) post(ctx context.Context, hc *http.Client, path string, body io.Reader, contentType string, marker Marker, rewind ...func() io.Reader) ([]byte, error) {
	endpoint := c.baseURL + path
	reader := body
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("User-Agent", marker.UserAgent())

		resp, err := hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", path, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", path, err)
		}
		metrics.TNSRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusOK:
			return respBody, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= maxAttempts {
				return nil, fmt.Errorf("%s: %w", path, ErrRateExceeded)
			}
			c.logger.Warn("TNS rate limited, waiting before retry",
				zap.String("endpoint", path),
				zap.Int("attempt", attempt),
				zap.Duration("wait", c.retryWait))
			metrics.TNSRateLimitRetries.Inc()
			if err := sleepCtx(ctx, c.retryWait); err != nil {
				return nil, err
			}
			if len(rewind) > 0 {
				reader = rewind[0]()
			} else {
				return nil, fmt.Errorf("%s: cannot retry non-rewindable body", path)
			}
		default:
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
