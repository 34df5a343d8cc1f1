// ABOUTME: GraphQL query documents sent to the Airstack API.
// ABOUTME: Two fixed shapes: the trending-mints list and the per-address NFT detail.

package airstack

const trendingMintsQuery = `
query TrendingsMints($timeFrame: TimeFrame!, $criteria: TrendingMintsCriteria!) {
  TrendingMints(
    input: {
      timeFrame: $timeFrame
      audience: all
      blockchain: base
      criteria: $criteria
    }
  ) {
    TrendingMint {
      address
      erc1155TokenID
      criteriaCount
      timeFrom
      timeTo
      token {
        name
        symbol
        type
        tokenNfts {
          tokenURI
          contentValue {
            image {
              original
              extraSmall
              small
              medium
              large
            }
          }
          metaData {
            name
            description
          }
        }
      }
    }
  }
}`

const nftDetailQuery = `
query NFTDetail($address: Address!) {
  TokenNfts(
    input: { filter: { address: { _eq: $address } }, blockchain: base }
  ) {
    TokenNft {
      tokenURI
      contentValue {
        image {
          small
          medium
        }
      }
      metaData {
        name
        description
      }
    }
  }
}`
