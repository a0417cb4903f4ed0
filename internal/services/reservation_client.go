package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ReservationClient talks to the reservation-management service that owns
// the actual hotel inventory.
type ReservationClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewReservationClient(baseURL string, log *zap.Logger) *ReservationClient {
	return &ReservationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type createReservationResponse struct {
	BookingRef string `json:"booking_ref"`
}

// Create registers a confirmed reservation and returns the provider's
// booking reference.
func (c *ReservationClient) Create(ctx context.Context, req ReservationRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/internal/reservations", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("reservation service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("reservation service returned %d: %s", resp.StatusCode, string(b))
	}

	var result createReservationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.BookingRef, nil
}
