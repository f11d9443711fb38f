// Package ingestion walks the trade-query endpoint backward from the
// newest trade and maps raw records into canonical transactions.
package ingestion

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/graph"
	"nft-tracker/internal/rates"
)

// DefaultPrimaryFeePercent is the seller-fee percentage (net of creator
// royalties) charged by the primary marketplace. Trades matching it are
// classified as primary-marketplace trades.
const DefaultPrimaryFeePercent = 2.25

// currencyDecimals is the rounding precision of all derived currency fields.
const currencyDecimals = 8

// Normalizer maps one raw trade record into a canonical Transaction.
// It is pure apart from the outbound currency conversion, which may hit
// the price endpoint once per settlement-token symbol per run.
type Normalizer struct {
	converter         *rates.Converter
	primaryFeePercent float64
}

// NewNormalizer creates a Normalizer. A zero primaryFeePercent selects
// the default fee schedule.
func NewNormalizer(converter *rates.Converter, primaryFeePercent float64) *Normalizer {
	if primaryFeePercent == 0 {
		primaryFeePercent = DefaultPrimaryFeePercent
	}
	return &Normalizer{converter: converter, primaryFeePercent: primaryFeePercent}
}

// Normalize converts a raw trade into a Transaction. Amounts are scaled
// by the settlement token's decimals, converted to the reference
// currency, and rounded to 8 decimal places.
func (n *Normalizer) Normalize(ctx context.Context, raw graph.Trade) (domain.Transaction, error) {
	if len(raw.NFTs) == 0 {
		return domain.Transaction{}, fmt.Errorf("trade %s has no nfts", raw.InternalID)
	}
	nft := raw.NFTs[0]

	ts, err := parseTimestampMs(raw.Block.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade %s: %w", raw.InternalID, err)
	}

	coeff := math.Pow10(raw.Token.Decimals)

	rawPrice, err := strconv.ParseFloat(raw.RealizedNFTPrice, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade %s: parse price %q: %w", raw.InternalID, raw.RealizedNFTPrice, err)
	}
	rawFee, err := strconv.ParseFloat(raw.FeeBuyer, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("trade %s: parse fee %q: %w", raw.InternalID, raw.FeeBuyer, err)
	}

	price, err := n.converter.ToReference(ctx, rawPrice/coeff, raw.Token.Symbol)
	if err != nil {
		return domain.Transaction{}, err
	}
	networkFee, err := n.converter.ToReference(ctx, rawFee/coeff, raw.Token.Symbol)
	if err != nil {
		return domain.Transaction{}, err
	}

	sellerBips := raw.FeeBipsA + raw.FeeBipsB
	royaltyBips := nft.CreatorFeeBips
	marketplaceBips := sellerBips - royaltyBips
	if marketplaceBips < 0 {
		marketplaceBips = 0
	}

	return domain.Transaction{
		InternalID:           raw.InternalID,
		ExternalID:           raw.ID,
		AssetID:              nft.AssetID,
		ContractID:           nft.Contract,
		Buyer:                raw.AccountBuyer.Address,
		Seller:               raw.AccountSeller.Address,
		Timestamp:            ts,
		PriceEth:             roundCurrency(price),
		NetworkFeeEth:        roundCurrency(networkFee),
		MarketplaceFeeEth:    roundCurrency(price * float64(marketplaceBips) / 10000),
		RoyaltyEth:           roundCurrency(price * float64(royaltyBips) / 10000),
		IsPrimaryMarketplace: n.isPrimary(sellerBips, royaltyBips),
		DisplayTemplate:      displayTemplate(nft),
	}, nil
}

// isPrimary matches the net seller fee against the primary marketplace's
// schedule to 2-decimal precision.
func (n *Normalizer) isPrimary(sellerBips, royaltyBips int) bool {
	netPercent := math.Round(float64(sellerBips-royaltyBips)) / 100
	return netPercent == n.primaryFeePercent
}

// displayTemplate compresses the explorer id by replacing the contract
// and asset id with placeholders; both are already stored elsewhere.
func displayTemplate(nft graph.NFT) string {
	tpl := strings.Replace(nft.ID, nft.Contract, "{t}", 1)
	return strings.Replace(tpl, nft.AssetID, "{n}", 1)
}

// parseTimestampMs converts the endpoint's seconds-since-epoch string
// into milliseconds.
func parseTimestampMs(s string) (int64, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block timestamp %q: %w", s, err)
	}
	return sec * 1000, nil
}

func roundCurrency(v float64) float64 {
	shift := math.Pow10(currencyDecimals)
	return math.Round(v*shift) / shift
}
