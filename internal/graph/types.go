package graph

// Account is a marketplace account reference nested in a trade.
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Token is the settlement token of a trade.
type Token struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address"`
}

// NFT is the traded asset nested in a trade record.
type NFT struct {
	ID             string `json:"id"`     // explorer id, composed of contract and asset id
	AssetID        string `json:"nftID"`  // on-chain asset identifier
	Contract       string `json:"token"`  // collection contract address
	CreatorFeeBips int    `json:"creatorFeeBips"`
}

// Block carries the inclusion timestamp of a trade.
// The endpoint serializes big integers as strings.
type Block struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"` // seconds since epoch
}

// Trade is one raw NFT trade record as returned by the query endpoint.
// Amount fields are raw integers in the settlement token's smallest unit,
// serialized as strings.
type Trade struct {
	ID               string  `json:"id"`
	InternalID       string  `json:"internalID"`
	Block            Block   `json:"block"`
	AccountBuyer     Account `json:"accountBuyer"`
	AccountSeller    Account `json:"accountSeller"`
	Token            Token   `json:"token"`
	NFTs             []NFT   `json:"nfts"`
	RealizedNFTPrice string  `json:"realizedNFTPrice"`
	FeeBuyer         string  `json:"feeBuyer"`
	FeeBipsA         int     `json:"feeBipsA"`
	FeeBipsB         int     `json:"feeBipsB"`
}
