// Package backend talks to the results backend: the REST service that holds
// OCR output, rubrics, vision descriptions and restructure results.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultBaseURL is the production results backend.
const DefaultBaseURL = "https://transback.transpoze.ai"

// Database operation outcomes reported by SaveResult.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpFailed  = "failed"
)

// ErrNotFound is returned when the backend has no data for an id.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional (tests)
	Logger     *slog.Logger
}

// Client is an HTTP client for the results backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   uint
	retryDelay time.Duration
	logger     *slog.Logger
}

// New creates a backend client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		attempts:   uint(cfg.MaxRetries) + 1,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnswerSheet is the combined OCR text of a script.
type AnswerSheet struct {
	Text       string                     `json:"text"`
	Structured map[string]json.RawMessage `json:"structured"`
	Pages      int                        `json:"pages"`
}

// OCRPage is one page record from /ocr/.
type OCRPage struct {
	PageNumber     float64         `json:"page_number"`
	OCRJSON        json.RawMessage `json:"ocr_json"`
	StructuredJSON json.RawMessage `json:"structured_json"`
	Context        any             `json:"context"`
}

// FetchAnswerSheet retrieves all OCR pages for a script and joins them in
// page order.
func (c *Client) FetchAnswerSheet(ctx context.Context, scriptID string) (*AnswerSheet, error) {
	c.logger.Info("requesting OCR data", "script_id", scriptID)

	var pages []OCRPage
	if err := c.do(ctx, http.MethodGet, "/ocr/?script_id="+url.QueryEscape(scriptID), nil, &pages); err != nil {
		return nil, fmt.Errorf("OCR API request: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no OCR records found for script_id %s: %w", scriptID, ErrNotFound)
	}

	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })

	sheet := &AnswerSheet{Structured: make(map[string]json.RawMessage, len(pages)), Pages: len(pages)}
	var b strings.Builder
	for _, p := range pages {
		num := strconv.FormatFloat(p.PageNumber, 'f', -1, 64)
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("--- Page " + num + " ---\n")
		b.WriteString(PageText(p.OCRJSON))
		if !isEmpty(p.Context) {
			b.WriteString("\n[Context: " + stringify(p.Context) + "]")
		}
		sheet.Structured["page_"+num] = p.StructuredJSON
	}
	sheet.Text = b.String()

	c.logger.Info("combined OCR pages", "script_id", scriptID, "pages", len(pages))
	return sheet, nil
}

// CompareText holds the vision and MCQ data for a script. Missing values
// are empty objects.
type CompareText struct {
	VLMDesc any `json:"vlmdesc"`
	MCQ     any `json:"mcq"`
}

// FetchCompareText returns the first /compare-text/ record for a script.
// Absent records or fields yield empty objects, not an error.
func (c *Client) FetchCompareText(ctx context.Context, scriptID string) (*CompareText, error) {
	out := &CompareText{VLMDesc: map[string]any{}, MCQ: map[string]any{}}

	var records []map[string]any
	if err := c.do(ctx, http.MethodGet, "/compare-text/?script_id="+url.QueryEscape(scriptID), nil, &records); err != nil {
		return out, fmt.Errorf("compare-text API request: %w", err)
	}
	if len(records) == 0 {
		c.logger.Warn("no compare text records found", "script_id", scriptID)
		return out, nil
	}
	if v := records[0]["vlmdesc"]; !isEmpty(v) {
		out.VLMDesc = v
	}
	if v := records[0]["mcq"]; !isEmpty(v) {
		out.MCQ = v
	}
	return out, nil
}

// FetchVLMDesc returns the vision-model description for a script.
func (c *Client) FetchVLMDesc(ctx context.Context, scriptID string) (any, error) {
	ct, err := c.FetchCompareText(ctx, scriptID)
	return ct.VLMDesc, err
}

// FetchMCQ returns the detected multiple-choice answers for a script.
func (c *Client) FetchMCQ(ctx context.Context, scriptID string) (any, error) {
	ct, err := c.FetchCompareText(ctx, scriptID)
	return ct.MCQ, err
}

// FetchRubrics returns the marking rubric for a subject.
func (c *Client) FetchRubrics(ctx context.Context, subjectID string) (string, error) {
	c.logger.Info("requesting rubrics", "subject_id", subjectID)

	var body any
	if err := c.do(ctx, http.MethodGet, "/key-ocr/?subject_id="+url.QueryEscape(subjectID), nil, &body); err != nil {
		return "", fmt.Errorf("key-OCR API request: %w", err)
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected response format for subject_id %s", subjectID)
	}
	rubrics := obj["rubrics"]
	if isEmpty(rubrics) {
		return "", fmt.Errorf("no rubrics found for subject_id %s: %w", subjectID, ErrNotFound)
	}
	return stringify(rubrics), nil
}

// resultPayload is the create body for /results/. The score, grade and
// analytics sections are filled by downstream services.
type resultPayload struct {
	ScriptID         string         `json:"script_id"`
	RestructuredText any            `json:"restructuredtext"`
	Scored           map[string]any `json:"scored"`
	Graded           map[string]any `json:"graded"`
	Analytics        map[string]any `json:"analytics"`
}

type resultUpdate struct {
	ResultID         any `json:"result_id"`
	RestructuredText any `json:"restructuredtext"`
}

// SaveResult creates the result for a script, or updates the existing one
// when creation fails. It returns OpCreated or OpUpdated with the backend's
// response body, or OpFailed with the update error.
func (c *Client) SaveResult(ctx context.Context, scriptID string, restructured any) (string, any, error) {
	c.logger.Info("saving result", "script_id", scriptID)

	var created any
	createErr := c.do(ctx, http.MethodPost, "/results/", resultPayload{
		ScriptID:         scriptID,
		RestructuredText: restructured,
		Scored:           map[string]any{},
		Graded:           map[string]any{},
		Analytics:        map[string]any{},
	}, &created)
	if createErr == nil {
		return OpCreated, created, nil
	}
	c.logger.Warn("save failed, trying to update existing record", "script_id", scriptID, "error", createErr)

	updated, err := c.updateResult(ctx, scriptID, restructured)
	if err != nil {
		c.logger.Error("both save and update failed", "script_id", scriptID, "error", err)
		return OpFailed, nil, err
	}
	return OpUpdated, updated, nil
}

func (c *Client) updateResult(ctx context.Context, scriptID string, restructured any) (any, error) {
	var existing []map[string]any
	if err := c.do(ctx, http.MethodGet, "/results/?script_id="+url.QueryEscape(scriptID), nil, &existing); err != nil {
		return nil, fmt.Errorf("fetch existing result: %w", err)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("no existing result for script_id %s: %w", scriptID, ErrNotFound)
	}
	resultID, ok := existing[0]["result_id"]
	if !ok {
		return nil, fmt.Errorf("existing result for script_id %s has no result_id", scriptID)
	}

	var updated any
	if err := c.do(ctx, http.MethodPut, "/results/", resultUpdate{ResultID: resultID, RestructuredText: restructured}, &updated); err != nil {
		return nil, fmt.Errorf("update result: %w", err)
	}
	return updated, nil
}

// Ping checks that the backend root answers 200 within 5 seconds.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: "Status: " + strconv.Itoa(resp.StatusCode)}
	}
	return nil
}

// do performs a JSON request, retrying transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		payload = b
	}

	return retry.Do(
		func() error {
			var reader io.Reader
			if payload != nil {
				reader = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			return c.handleResponse(resp, result)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying backend request", "method", method, "path", path, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}
