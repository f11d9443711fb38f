package domain

// AssetRecord is the per-asset entry in the persisted asset map.
// Created on first sighting, enriched with metadata once resolved, and
// deleted once the asset has no trades left in the weekly series.
type AssetRecord struct {
	ContractID      string  `json:"contractId"`
	LastPrice       float64 `json:"lastPrice"`
	Title           string  `json:"title,omitempty"`
	Image           string  `json:"image,omitempty"`
	DisplayTemplate string  `json:"displayTemplate"`
}

// AssetMetadata is the off-chain descriptive metadata resolved for an asset.
type AssetMetadata struct {
	Title string
	Image string
}

// Summary is the run-level headline persisted alongside the series files.
type Summary struct {
	UpdatedAt          int64   `json:"updatedAt"`          // wall clock of the run (ms)
	LastTradeTimestamp int64   `json:"lastTradeTimestamp"` // newest ingested trade (ms)
	Volume             float64 `json:"volume"`             // 24h volume in ETH
	TradeCount         int     `json:"tradeCount"`         // 24h trades
}
