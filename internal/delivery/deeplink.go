// ABOUTME: Deep-link builder for mint frame URLs.
// ABOUTME: One link format shared by scheduled sends and the onboarding one-shot.

package delivery

import (
	"fmt"
	"strings"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
)

// DefaultFrameBaseURL is the local frame server used when none is configured.
const DefaultFrameBaseURL = "http://localhost:3001"

// DeepLink builds the frame URL for one mint, carrying the contract address
// and its popularity count.
func DeepLink(baseURL string, mint airstack.TrendingMint) string {
	if baseURL == "" {
		baseURL = DefaultFrameBaseURL
	}
	return fmt.Sprintf("%s?chain=base&a=%s&c=%d",
		strings.TrimSuffix(baseURL, "/"), mint.Address, mint.CriteriaCount)
}
