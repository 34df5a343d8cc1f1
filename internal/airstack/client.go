// ABOUTME: HTTP client for the Airstack GraphQL API.
// ABOUTME: Posts JSON query documents with bearer auth and decodes typed responses.

package airstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the production Airstack GraphQL endpoint.
const DefaultEndpoint = "https://api.airstack.xyz/gql"

// Client talks to the Airstack GraphQL API.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates an Airstack client. An empty endpoint selects
// DefaultEndpoint.
func NewClient(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "airstack"),
	}
}

// graphqlRequest is the POST body for a GraphQL query.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlError is a single error entry in a GraphQL response.
type graphqlError struct {
	Message string `json:"message"`
}

// graphqlResponse is the envelope every GraphQL response arrives in.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// query executes one GraphQL request and decodes the data payload into out.
func (c *Client) query(ctx context.Context, document string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshaling query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("airstack returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		return fmt.Errorf("airstack query error: %s", envelope.Errors[0].Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding data payload: %w", err)
		}
	}
	return nil
}

// trendingMintsData matches the data payload of the trending-mints query.
type trendingMintsData struct {
	TrendingMints struct {
		TrendingMint []TrendingMint `json:"TrendingMint"`
	} `json:"TrendingMints"`
}

// TrendingMints fetches the trending mints for a time frame ranked by the
// given criteria. A valid empty result returns an empty slice, not an error.
func (c *Client) TrendingMints(ctx context.Context, timeFrame TimeFrame, criteria Criteria) ([]TrendingMint, error) {
	var data trendingMintsData
	err := c.query(ctx, trendingMintsQuery, map[string]any{
		"timeFrame": string(timeFrame),
		"criteria":  string(criteria),
	}, &data)
	if err != nil {
		return nil, err
	}

	mints := data.TrendingMints.TrendingMint
	c.logger.Debug("fetched trending mints", "time_frame", timeFrame, "criteria", criteria, "count", len(mints))
	return mints, nil
}

// nftDetailData matches the data payload of the NFT-detail query.
type nftDetailData struct {
	TokenNfts struct {
		TokenNft []TokenNft `json:"TokenNft"`
	} `json:"TokenNfts"`
}

// NFTDetail fetches the detail record for one token contract address.
// Returns nil when the API has no matching NFT.
func (c *Client) NFTDetail(ctx context.Context, address string) (*TokenNft, error) {
	var data nftDetailData
	err := c.query(ctx, nftDetailQuery, map[string]any{"address": address}, &data)
	if err != nil {
		return nil, err
	}

	if len(data.TokenNfts.TokenNft) == 0 {
		return nil, nil
	}
	nft := data.TokenNfts.TokenNft[0]
	return &nft, nil
}
