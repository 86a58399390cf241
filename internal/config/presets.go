package config

import "sort"

var Presets = map[string]*Config{
	"standard": {
		Family: "scat", Select: true, Span: DefaultSpan,
		Basis:   BasisConfig{Type: "gp", K: 20},
		Sampler: SamplerConfig{Iterations: 1000, Chains: 4, Seed: 1},
	},
	"gaussian": {
		Family: "gaussian", Select: true, Span: DefaultSpan,
		Basis:   BasisConfig{Type: "gp", K: 20},
		Sampler: SamplerConfig{Iterations: 1000, Chains: 4, Seed: 1},
	},
	"pspline": {
		Family: "scat", Select: true, Span: DefaultSpan,
		Basis:   BasisConfig{Type: "ps", K: 20},
		Sampler: SamplerConfig{Iterations: 1000, Chains: 4, Seed: 1},
	},
	"quick": {
		Family: "gaussian", Select: false, Span: DefaultSpan,
		Basis:   BasisConfig{Type: "gp", K: 10},
		Sampler: SamplerConfig{Iterations: 400, Chains: 2, Seed: 1},
	},
	"long": {
		Family: "scat", Select: true, Span: DefaultSpan,
		Basis:   BasisConfig{Type: "gp", K: 20},
		Sampler: SamplerConfig{Iterations: 4000, Chains: 4, Seed: 1},
	},
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
