package domain

import "math"

// Money carries an amount in the two accounting currencies.
type Money struct {
	USD float64 `json:"usd"`
	XAF float64 `json:"xaf"`
}

func (m Money) Add(other Money) Money {
	return Money{USD: m.USD + other.USD, XAF: m.XAF + other.XAF}
}

// Pricing is expressed per million tokens in USD.
type Pricing struct {
	InputPerMillionUSD  float64 `yaml:"input_per_million_usd" json:"input_per_million_usd"`
	OutputPerMillionUSD float64 `yaml:"output_per_million_usd" json:"output_per_million_usd"`
	USDToXAF            float64 `yaml:"usd_to_xaf" json:"usd_to_xaf"`
}

// GenerationCostUSD prices a generation from its token usage.
func (p Pricing) GenerationCostUSD(promptTokens, completionTokens int) float64 {
	cost := float64(promptTokens)*p.InputPerMillionUSD/1e6 + float64(completionTokens)*p.OutputPerMillionUSD/1e6
	return roundMoney(cost)
}

// Convert expresses a USD amount in both currencies at the configured rate.
func (p Pricing) Convert(usd float64) Money {
	return Money{USD: roundMoney(usd), XAF: roundMoney(usd * p.USDToXAF)}
}

func roundMoney(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
