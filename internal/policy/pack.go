package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Pack is a policy overlay shipped as its own YAML file. Packs can only make
// the pipeline stricter: action sets and markers are unioned, thresholds
// keep the most restrictive value.
type Pack struct {
	Name                 string         `yaml:"name"`
	Description          string         `yaml:"description"`
	PackVersion          string         `yaml:"version"`
	Author               string         `yaml:"author"`
	Thresholds           PackThresholds `yaml:"thresholds"`
	DisruptiveActions    []string       `yaml:"disruptive_actions"`
	AccessControlActions []string       `yaml:"access_control_actions"`
	InjectionMarkers     []string       `yaml:"injection_markers"`
}

// PackThresholds are optional; zero means "not set by this pack".
type PackThresholds struct {
	Trust       float64       `yaml:"trust"`
	BurstWindow time.Duration `yaml:"burst_window"`
	BurstCount  int           `yaml:"burst_count"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	Additions   int
	Err         error
}

// LoadPacks reads all .yaml files from the packs directory in name order and
// merges them into a copy of the base policy. Files prefixed with "_" are
// listed but disabled. A pack that fails to parse is reported in its
// PackInfo and skipped.
func LoadPacks(packsDir string, base *Policy) (*Policy, []PackInfo, error) {
	var infos []PackInfo

	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	result := clonePolicy(base)

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			log.WithError(err).Warnf("skipping policy pack %s", path)
			infos = append(infos, PackInfo{
				Name:    baseName,
				Enabled: enabled,
				Path:    path,
				Err:     err,
			})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			Additions:   len(pack.DisruptiveActions) + len(pack.AccessControlActions) + len(pack.InjectionMarkers),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if !enabled {
			continue
		}
		mergePackInto(result, pack)
	}

	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	if t := pack.Thresholds.Trust; t < 0 || t > 1 {
		return nil, fmt.Errorf("pack %s: thresholds.trust must be within [0,1] (got %v)", path, t)
	}
	return &pack, nil
}

// mergePackInto tightens target with a pack.
func mergePackInto(target *Policy, pack *Pack) {
	target.DisruptiveActions = union(target.DisruptiveActions, normalizeActions(pack.DisruptiveActions))
	target.AccessControlActions = union(target.AccessControlActions, normalizeActions(pack.AccessControlActions))

	var markers []string
	for _, m := range pack.InjectionMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	target.InjectionMarkers = union(target.InjectionMarkers, markers)

	t := pack.Thresholds
	if t.Trust > target.Thresholds.Trust {
		target.Thresholds.Trust = t.Trust
	}
	// a longer window or a lower count escalates sooner
	if t.BurstWindow > target.Thresholds.BurstWindow {
		target.Thresholds.BurstWindow = t.BurstWindow
	}
	if t.BurstCount > 0 && t.BurstCount < target.Thresholds.BurstCount {
		target.Thresholds.BurstCount = t.BurstCount
	}
}

func union(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range extra {
		if !seen[v] {
			seen[v] = true
			base = append(base, v)
		}
	}
	return base
}

func clonePolicy(p *Policy) *Policy {
	clone := &Policy{
		Version:    p.Version,
		Thresholds: p.Thresholds,
	}
	clone.DisruptiveActions = append([]string(nil), p.DisruptiveActions...)
	clone.AccessControlActions = append([]string(nil), p.AccessControlActions...)
	clone.InjectionMarkers = append([]string(nil), p.InjectionMarkers...)
	return clone
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
