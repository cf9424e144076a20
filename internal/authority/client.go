package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DocumentSnapshot is the payload sent to the tax authority for
// authorization. It is a frozen view of the document at the moment of the
// call; the authority never sees mutable state.
type DocumentSnapshot struct {
	DocumentType string      `json:"document_type"` // "invoice" or "credit_note"
	Number       string      `json:"number"`
	Type         string      `json:"type"` // comprobante letter
	CustomerName string      `json:"customer_name"`
	CustomerTax  string      `json:"customer_tax_id"`
	NetAmount    string      `json:"net_amount"`
	TaxAmount    string      `json:"tax_amount"`
	TotalAmount  string      `json:"total_amount"`
	IssuedAt     time.Time   `json:"issued_at"`
	Items        []LineEntry `json:"items"`
}

// LineEntry is one snapshot line.
type LineEntry struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TaxRate     string `json:"tax_rate"`
	LineTotal   string `json:"line_total"`
}

// Result is the authority's verdict. Authorized carries a code and expiry;
// a refusal carries the authority's reason verbatim.
type Result struct {
	Authorized bool      `json:"authorized"`
	Code       string    `json:"code"`
	Expiry     time.Time `json:"expiry"`
	Reason     string    `json:"reason"`
}

// Authorizer is the narrow contract to the external tax authority. The call
// is synchronous and non-idempotent: a transport error returns err != nil
// and MUST NOT be retried automatically.
type Authorizer interface {
	Authorize(ctx context.Context, snapshot DocumentSnapshot) (Result, error)
}

// HTTPClient talks to the authorization service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) Authorize(ctx context.Context, snapshot DocumentSnapshot) (Result, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authorize", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("requesting authorization",
		zap.String("document_type", snapshot.DocumentType),
		zap.String("number", snapshot.Number))

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("authorization call failed",
			zap.String("number", snapshot.Number), zap.Error(err))
		return Result{}, fmt.Errorf("authorization call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("authorization service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode authorization response: %w", err)
	}

	c.logger.Info("authorization response",
		zap.String("number", snapshot.Number),
		zap.Bool("authorized", result.Authorized))
	return result, nil
}
