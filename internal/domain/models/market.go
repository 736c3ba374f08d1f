package models

type MarketType string

const (
	MarketReal        MarketType = "real"
	MarketOTC         MarketType = "otc"
	MarketCrypto      MarketType = "crypto"
	MarketCommodities MarketType = "commodities"
)

// Pair describes one watched symbol.
type Pair struct {
	Symbol    string     `json:"symbol"`
	Market    MarketType `json:"market"`
	Feed      string     `json:"feed"` // live | synthetic
	Available bool       `json:"available"`
}
