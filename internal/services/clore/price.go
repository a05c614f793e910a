package clore

import (
	"strconv"
	"strings"
)

// Price sources
const (
	PriceSourceMarket = "market"
	PriceSourceFixed  = "fixed"
)

// ExtractServerPrice resolves the daily USD price of a listing. The
// market-converted USD quote wins; a fixed CLORE price is converted with
// the supplied rate. ok is false when the listing carries no usable price.
func ExtractServerPrice(s Server, cloreToUSD float64) (price float64, source string, ok bool) {
	if usd, exists := s.Price.USD["on_demand_clore"]; exists && usd > 0 {
		return usd, PriceSourceMarket, true
	}
	if fixed, exists := s.Price.OnDemand[CurrencyClore]; exists && fixed > 0 {
		return fixed * cloreToUSD, PriceSourceFixed, true
	}
	return 0, "", false
}

// ExtractGPUInfo splits a GPU descriptor like "4x NVIDIA GeForce RTX 3070"
// into a count and a short model name.
func ExtractGPUInfo(gpu string) (count int, model string) {
	parts := strings.SplitN(gpu, "x ", 2)
	if len(parts) == 2 {
		if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && n > 0 {
			model = strings.ReplaceAll(parts[1], "NVIDIA GeForce ", "")
			model = strings.ReplaceAll(model, "NVIDIA ", "")
			return n, model
		}
	}
	return 1, gpu
}
