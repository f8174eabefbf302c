package relayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/speedrun-hq/bridgerunner/pkg/models"
)

// StatusResponse is the relay's view of a submitted transfer
type StatusResponse struct {
	Status   string   `json:"status"`
	Details  string   `json:"details"`
	TxHashes []string `json:"txHashes"`
}

// Normalized maps the relay's status vocabulary onto TransferStatus.
// Anything unrecognised is treated as still pending.
func (s *StatusResponse) Normalized() models.TransferStatus {
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case "success", "completed":
		return models.TransferComplete
	case "failed", "failure":
		return models.TransferFailed
	case "refunded", "refund":
		return models.TransferRefunded
	default:
		return models.TransferPending
	}
}

// Status fetches the settlement status of a relay request
func (c *Client) Status(ctx context.Context, requestID string) (*StatusResponse, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, fmt.Errorf("request id is required")
	}

	path := "/intents/status?" + url.Values{"requestId": {requestID}}.Encode()
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status for %s: %w", requestID, err)
	}

	var resp StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %v", err)
	}
	return &resp, nil
}
