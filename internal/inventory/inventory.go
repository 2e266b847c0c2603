// Package inventory loads the asset registry and seed trust scores from a
// YAML file and keeps the state store in sync with it.
package inventory

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/agentlock/internal/logger"
	"github.com/gzhole/agentlock/internal/state"
)

var log = logger.New("inventory")

// File is the on-disk inventory format:
//
//	assets:
//	  - id: dc-01
//	    tier: 0
//	default_trust:
//	  EDR_SentinelOne: 0.95
type File struct {
	Assets       []state.Asset      `yaml:"assets"`
	DefaultTrust map[string]float64 `yaml:"default_trust"`
}

// Default returns the built-in inventory: the three Tier-0 assets of the
// reference deployment and no trusted sources.
func Default() *File {
	return &File{
		Assets: []state.Asset{
			{ID: "dc-01", Tier: 0},
			{ID: "core-firewall", Tier: 0},
			{ID: "idp-cluster", Tier: 0},
		},
		DefaultTrust: map[string]float64{},
	}
}

// Load reads an inventory file. An empty path or a missing file yields Default.
func Load(path string) (*File, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("inventory %s not found, using built-in Tier-0 list", path)
			return Default(), nil
		}
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.DefaultTrust == nil {
		f.DefaultTrust = map[string]float64{}
	}
	return &f, nil
}

// Validate rejects duplicate ids, negative tiers and trust outside [0,1].
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Assets))
	for i, a := range f.Assets {
		if a.ID == "" {
			return fmt.Errorf("assets[%d]: id is required", i)
		}
		if a.Tier < 0 {
			return fmt.Errorf("asset %q: tier must be >= 0 (got %d)", a.ID, a.Tier)
		}
		if seen[a.ID] {
			return fmt.Errorf("asset %q listed twice", a.ID)
		}
		seen[a.ID] = true
	}
	for src, v := range f.DefaultTrust {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("default_trust[%s] must be within [0,1] (got %v)", src, v)
		}
	}
	return nil
}

// NewStore builds a state store seeded from the inventory.
func (f *File) NewStore(opts ...state.Option) (*state.Store, error) {
	opts = append([]state.Option{state.WithTrust(f.DefaultTrust)}, opts...)
	return state.New(f.Assets, opts...)
}
