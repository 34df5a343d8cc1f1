// ABOUTME: Wire types for the Airstack GraphQL API responses.
// ABOUTME: TrendingMint and TokenNft mirror the fields selected by the query documents.

package airstack

// TimeFrame selects the window a trending query ranks over.
type TimeFrame string

// Time frames accepted by the TrendingMints API.
const (
	TimeFrameOneHour  TimeFrame = "one_hour"
	TimeFrameTwoHours TimeFrame = "two_hours"
	TimeFrameOneDay   TimeFrame = "one_day"
)

// Criteria selects the popularity metric a trending query ranks by.
type Criteria string

// Ranking criteria accepted by the TrendingMints API.
const (
	CriteriaUniqueWallets Criteria = "unique_wallets"
	CriteriaTotalMints    Criteria = "total_mints"
)

// TrendingMint is one row of a trending-mints result. Address is the token
// contract and acts as the identity everywhere else in the bot; rows without
// one are malformed and get dropped before delivery.
type TrendingMint struct {
	Address        string `json:"address"`
	ERC1155TokenID string `json:"erc1155TokenID"`
	CriteriaCount  int    `json:"criteriaCount"`
	TimeFrom       string `json:"timeFrom"`
	TimeTo         string `json:"timeTo"`
	Token          *Token `json:"token"`
}

// Token holds the nested token metadata of a trending mint.
type Token struct {
	Name      string     `json:"name"`
	Symbol    string     `json:"symbol"`
	Type      string     `json:"type"`
	TokenNfts []TokenNft `json:"tokenNfts"`
}

// TokenNft is the per-NFT detail record, also returned standalone by the
// NFTDetail query.
type TokenNft struct {
	TokenURI     string        `json:"tokenURI"`
	ContentValue *ContentValue `json:"contentValue"`
	MetaData     *NftMetadata  `json:"metaData"`
}

// ContentValue wraps the resolved media for an NFT.
type ContentValue struct {
	Image *ImageSizes `json:"image"`
}

// ImageSizes holds the image URL at each resolution Airstack serves.
type ImageSizes struct {
	Original   string `json:"original"`
	ExtraSmall string `json:"extraSmall"`
	Small      string `json:"small"`
	Medium     string `json:"medium"`
	Large      string `json:"large"`
}

// NftMetadata holds the display name and description of an NFT.
type NftMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
