package domain

// Transaction is one executed NFT trade in canonical form.
// All currency amounts are in the reference currency (ETH) rounded
// to 8 decimal places.
type Transaction struct {
	InternalID string `json:"iid"`    // pagination cursor, strictly ordered, unique
	ExternalID string `json:"id"`     // public display identifier
	AssetID    string `json:"nftId"`  // traded asset
	ContractID string `json:"token"`  // parent collection contract
	Buyer      string `json:"buyer"`  // buyer address
	Seller     string `json:"seller"` // seller address
	Timestamp  int64  `json:"ts"`     // milliseconds since epoch

	PriceEth          float64 `json:"price"`
	NetworkFeeEth     float64 `json:"networkFee"`
	MarketplaceFeeEth float64 `json:"marketplaceFee"`
	RoyaltyEth        float64 `json:"royalty"`

	// IsPrimaryMarketplace is derived from the seller-side fee schedule:
	// (totalSellerFeeBips - royaltyBips) / 100 matches the marketplace's
	// known fee percentage to 2-decimal precision.
	IsPrimaryMarketplace bool `json:"primary"`

	// DisplayTemplate is the explorer id with the contract and asset id
	// replaced by {t} and {n} placeholders.
	DisplayTemplate string `json:"-"`
}

// TransactionSummary is the trimmed shape persisted in the
// latest-transactions file. The dashboard does not need fee decomposition
// or the display template.
type TransactionSummary struct {
	InternalID string  `json:"iid"`
	ExternalID string  `json:"id"`
	AssetID    string  `json:"nftId"`
	Buyer      string  `json:"buyer"`
	Seller     string  `json:"seller"`
	Timestamp  int64   `json:"ts"`
	PriceEth   float64 `json:"price"`
	FeeEth     float64 `json:"fee"`
}

// Summarize trims a transaction down to its persisted list shape.
func (t Transaction) Summarize() TransactionSummary {
	return TransactionSummary{
		InternalID: t.InternalID,
		ExternalID: t.ExternalID,
		AssetID:    t.AssetID,
		Buyer:      t.Buyer,
		Seller:     t.Seller,
		Timestamp:  t.Timestamp,
		PriceEth:   t.PriceEth,
		FeeEth:     t.NetworkFeeEth,
	}
}
