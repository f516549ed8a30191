// Package client talks to the labeler API: it uploads invoices and turns
// failed calls into a single user-visible message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
)

// GenericErrorMessage is shown when a failed response carries nothing readable.
const GenericErrorMessage = "Upload failed. Please try again."

// UpstreamError is a failed call: transport error or non-2xx status.
type UpstreamError struct {
	StatusCode int // 0 when the request never got a response
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "upstream error: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Client calls a running labeler API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL (e.g. http://localhost:8080).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// SubmitInvoice uploads an invoice image and returns the OCR payload.
func (c *Client) SubmitInvoice(ctx context.Context, filename string, image []byte, sessionID string) (*reconcile.Payload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if sessionID != "" {
		if err := mw.WriteField("session_id", sessionID); err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	data, err := c.post(ctx, "/api/v1/invoice", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}

	payload, err := reconcile.DecodePayload(data)
	if err != nil {
		return nil, &UpstreamError{Message: "Server returned an unreadable response.", Err: err}
	}
	return &payload, nil
}

// Reconcile posts a raw upstream payload and returns the reconciled result.
func (c *Client) Reconcile(ctx context.Context, payload []byte) (*reconcile.Result, error) {
	data, err := c.post(ctx, "/api/v1/reconcile", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var result reconcile.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &UpstreamError{Message: "Server returned an unreadable response.", Err: err}
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: GenericErrorMessage, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: GenericErrorMessage, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: ErrorMessage(data)}
	}
	return data, nil
}

// ErrorMessage picks the user-visible text of a failed response: the JSON
// "detail" string, else the raw body, else GenericErrorMessage.
func ErrorMessage(body []byte) string {
	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Detail) > 0 {
		var detail string
		if json.Unmarshal(errResp.Detail, &detail) == nil && strings.TrimSpace(detail) != "" {
			return detail
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return GenericErrorMessage
}
