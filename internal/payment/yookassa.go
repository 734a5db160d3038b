package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"zenith-bot/internal/metrics"
)

const defaultAPIURL = "https://api.yookassa.ru/v3"

type Client struct {
	ShopID     string
	SecretKey  string
	APIURL     string
	ReturnURL  string
	HTTPClient *http.Client
}

func NewClient(shopID, secretKey, apiURL, returnURL string) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		ShopID:    shopID,
		SecretKey: secretKey,
		APIURL:    strings.TrimRight(apiURL, "/"),
		ReturnURL: returnURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreatePayment создает платеж с автосписанием и redirect-подтверждением.
func (c *Client) CreatePayment(ctx context.Context, amount int, description string, metadata map[string]string) (*PaymentResponse, error) {
	reqBody := CreatePaymentRequest{
		Amount: Amount{
			Value:    fmt.Sprintf("%d.00", amount),
			Currency: "RUB",
		},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: c.ReturnURL,
		},
		Description: description,
		Metadata:    metadata,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/payments", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Idempotence-Key", uuid.New().String())
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "create_payment")
}

func (c *Client) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+"/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, "get_payment")
}

func (c *Client) do(req *http.Request, operation string) (*PaymentResponse, error) {
	req.SetBasicAuth(c.ShopID, c.SecretKey)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("yookassa", operation, "api", start, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("yookassa", operation, "api", start, err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("api error: %s (status: %d)", strings.TrimSpace(string(respBody)), resp.StatusCode)
		metrics.ObserveNetworkRequest("yookassa", operation, "api", start, err)
		return nil, err
	}

	var paymentResponse PaymentResponse
	if err := json.Unmarshal(respBody, &paymentResponse); err != nil {
		metrics.ObserveNetworkRequest("yookassa", operation, "api", start, err)
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	metrics.ObserveNetworkRequest("yookassa", operation, "api", start, nil)
	return &paymentResponse, nil
}
