// Package paystack is a thin client for the hosted-payment processor:
// transaction initialization, verification by reference and webhook
// signature checks. Outbound calls go through a circuit breaker so a
// degraded processor fails fast instead of piling up requests.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/sony/gobreaker/v2"
)

var ErrProcessorRejected = errors.New("payment processor rejected the request")

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "paystack",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type InitializeRequest struct {
	Email       string                  `json:"email"`
	Amount      int64                   `json:"amount"`
	Currency    string                  `json:"currency"`
	Reference   string                  `json:"reference"`
	CallbackURL string                  `json:"callback_url"`
	Metadata    domain.CheckoutMetadata `json:"metadata"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize creates a payment intent and returns the hosted-payment URL the
// buyer is sent to. No local payment or order state is written here.
func (c *Client) Initialize(ctx context.Context, req *InitializeRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal initialize request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return "", err
	}

	var resp initializeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse initialize response: %w", err)
	}
	if !resp.Status {
		return "", fmt.Errorf("%w: %s", ErrProcessorRejected, resp.Message)
	}
	return resp.Data.AuthorizationURL, nil
}

// VerifyResult is the processor's answer for one reference plus the raw
// response body, which reconciliation persists alongside the payment.
type VerifyResult struct {
	Status    string
	Reference string
	Amount    int64
	Metadata  domain.CheckoutMetadata
	Raw       []byte
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string                  `json:"status"`
		Reference string                  `json:"reference"`
		Amount    int64                   `json:"amount"`
		Metadata  domain.CheckoutMetadata `json:"metadata"`
	} `json:"data"`
}

// Verify confirms the state of a payment reference with the processor.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse verify response: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("%w: %s", ErrProcessorRejected, resp.Message)
	}

	return &VerifyResult{
		Status:    resp.Data.Status,
		Reference: resp.Data.Reference,
		Amount:    resp.Data.Amount,
		Metadata:  resp.Data.Metadata,
		Raw:       respBody,
	}, nil
}

// ValidateSignature checks the webhook authenticity signature: HMAC-SHA512
// over the raw request body with the shared secret, hex encoded.
func (c *Client) ValidateSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build %s %s: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("processor returned %d", resp.StatusCode)
		}
		return respBody, nil
	})
}
