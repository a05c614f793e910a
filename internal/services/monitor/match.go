package monitor

import (
	"encoding/json"
	"fmt"
	"strings"

	"clore-watch/internal/services/clore"
)

// Criteria is the structured predicate of a hunt task. An absent field
// means no constraint on that dimension.
type Criteria struct {
	GPUModels      []string `json:"gpu_models,omitempty"`
	MaxPricePerGPU *float64 `json:"max_price_per_gpu,omitempty"`
	MinGPUCount    *int     `json:"min_gpu_count,omitempty"`
	MaxGPUCount    *int     `json:"max_gpu_count,omitempty"`
	MinRAMGB       *float64 `json:"min_ram_gb,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	MinRating      *float64 `json:"min_rating,omitempty"`
}

// ParseCriteria decodes the filters JSON stored on a hunt task
func ParseCriteria(raw string) (Criteria, error) {
	var c Criteria
	if raw == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("parse criteria: %w", err)
	}
	return c, nil
}

func (c Criteria) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode criteria: %w", err)
	}
	return string(b), nil
}

// MatchServers evaluates the criteria against a marketplace snapshot,
// preserving upstream order. Rented listings never match. Filters are
// AND-combined and checked cheapest first; a listing without a usable
// price is excluded whenever a price ceiling is set.
func MatchServers(servers []clore.Server, c Criteria, cloreToUSD float64) []clore.Server {
	var matched []clore.Server
	for _, srv := range servers {
		if srv.Rented {
			continue
		}
		if matchesCriteria(srv, c, cloreToUSD) {
			matched = append(matched, srv)
		}
	}
	return matched
}

func matchesCriteria(srv clore.Server, c Criteria, cloreToUSD float64) bool {
	gpuCount, _ := clore.ExtractGPUInfo(srv.Specs.GPU)

	if len(c.GPUModels) > 0 {
		gpu := strings.ToUpper(srv.Specs.GPU)
		found := false
		for _, model := range c.GPUModels {
			if model != "" && strings.Contains(gpu, strings.ToUpper(model)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.MaxPricePerGPU != nil {
		price, _, ok := clore.ExtractServerPrice(srv, cloreToUSD)
		if !ok || gpuCount <= 0 {
			return false
		}
		if price/float64(gpuCount) > *c.MaxPricePerGPU {
			return false
		}
	}

	if c.MinGPUCount != nil && gpuCount < *c.MinGPUCount {
		return false
	}
	if c.MaxGPUCount != nil && gpuCount > *c.MaxGPUCount {
		return false
	}

	if c.MinRAMGB != nil && srv.Specs.RAM < *c.MinRAMGB {
		return false
	}

	if len(c.Locations) > 0 {
		found := false
		for _, cc := range c.Locations {
			if strings.EqualFold(cc, srv.Specs.Net.CC) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.MinRating != nil && srv.Rating.Avg < *c.MinRating {
		return false
	}

	return true
}
