package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PaymentIntent is the gateway's intent object as returned by its API
// and embedded in webhook events. Metadata carries the item manifest
// the reconciler uses for stock decrements.
type PaymentIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	ReceiptEmail string            `json:"receipt_email"`
	Metadata     map[string]string `json:"metadata"`
}

// ManifestItem is one entry of the item manifest stored in intent metadata
type ManifestItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// ItemManifest extracts and parses the "items" manifest from intent
// metadata. A missing manifest yields an empty slice, not an error.
func (pi *PaymentIntent) ItemManifest() ([]ManifestItem, error) {
	raw, ok := pi.Metadata["items"]
	if !ok || raw == "" {
		return []ManifestItem{}, nil
	}

	var items []ManifestItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to parse item manifest: %w", err)
	}
	return items, nil
}

// CreateIntentParams are the inputs for creating a payment intent
type CreateIntentParams struct {
	AmountMinor  int64
	Currency     string
	ReceiptEmail string
	Manifest     []ManifestItem
}

// Client talks to the hosted payment gateway's REST API. Requests are
// form-encoded with bearer auth, the scheme used by hosted processors.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient creates a gateway client. The timeout bounds every call so
// a hung gateway cannot block a checkout request indefinitely.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// CreateIntent creates a payment intent carrying the computed total in
// minor units and the item manifest in metadata.
func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error) {
	manifest, err := json.Marshal(params.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item manifest: %w", err)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountMinor, 10))
	form.Set("currency", params.Currency)
	form.Set("receipt_email", params.ReceiptEmail)
	form.Set("metadata[email]", params.ReceiptEmail)
	form.Set("metadata[items]", string(manifest))

	var intent PaymentIntent
	if err := c.post(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CancelIntent cancels a payment intent. Used as the compensating
// action when the order insert fails after intent creation.
func (c *Client) CancelIntent(ctx context.Context, intentID string) error {
	path := fmt.Sprintf("/v1/payment_intents/%s/cancel", url.PathEscape(intentID))
	return c.post(ctx, path, url.Values{}, nil)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
