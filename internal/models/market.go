// Package models defines data structures for tsxdata
package models

import "time"

// SymbolListing is one row of the TMX listed-company directory:
// a company name and its TSX ticker symbol.
type SymbolListing struct {
	CompanyName string `json:"company_name"`
	Symbol      string `json:"symbol"`
}

// SymbolMatch is a single candidate returned by the Questrade symbol search.
type SymbolMatch struct {
	Symbol          string `json:"symbol"`
	SymbolID        int64  `json:"symbolId"`
	Description     string `json:"description"`
	SecurityType    string `json:"securityType"`
	ListingExchange string `json:"listingExchange"`
	IsTradable      bool   `json:"isTradable"`
	IsQuotable      bool   `json:"isQuotable"`
	Currency        string `json:"currency"`
}

// SymbolRef identifies one member of the ingestion universe.
type SymbolRef struct {
	SymbolID int64
	Symbol   string
}

// FundamentalsSnapshot is a dated per-symbol row of descriptive and financial
// attributes from the Questrade symbol detail endpoint. Snapshots are
// append-only, keyed logically by (symbol, info_date).
type FundamentalsSnapshot struct {
	InfoDate          time.Time `json:"info_date"`
	Symbol            string    `json:"symbol"`
	SymbolID          int64     `json:"symbolId"`
	PrevDayClosePrice float64   `json:"prevDayClosePrice"`
	HighPrice52       float64   `json:"highPrice52"`
	LowPrice52        float64   `json:"lowPrice52"`
	AverageVol3Months float64   `json:"averageVol3Months"`
	AverageVol20Days  float64   `json:"averageVol20Days"`
	OutstandingShares float64   `json:"outstandingShares"`
	EPS               float64   `json:"eps"`
	PE                float64   `json:"pe"`
	Dividend          float64   `json:"dividend"`
	Yield             float64   `json:"yield"`
	ExDate            string    `json:"exDate"`
	MarketCap         float64   `json:"marketCap"`
	ListingExchange   string    `json:"listingExchange"`
	Description       string    `json:"description"`
	SecurityType      string    `json:"securityType"`
	DividendDate      string    `json:"dividendDate"`
	IsTradable        bool      `json:"isTradable"`
	IsQuotable        bool      `json:"isQuotable"`
	Currency          string    `json:"currency"`
	IndustrySector    string    `json:"industrySector"`
	IndustryGroup     string    `json:"industryGroup"`
	IndustrySubgroup  string    `json:"industrySubgroup"`
}

// Candle is one daily OHLCV bar. The logical uniqueness key in storage is
// (start, symbol, symbol_id). A well-formed candle never has Start == End.
type Candle struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Low      float64   `json:"low"`
	High     float64   `json:"high"`
	Open     float64   `json:"open"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	VWAP     float64   `json:"VWAP"`
	SymbolID int64     `json:"symbol_id"`
	Symbol   string    `json:"symbol"`
}
