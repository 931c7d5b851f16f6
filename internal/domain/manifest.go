package domain

import (
	"fmt"
	"sort"
	"sync"
)

// Manifest indexes the bundles and asset locations of one package version
type Manifest struct {
	Package string        `json:"package" yaml:"package"`
	Version string        `json:"version" yaml:"version"`
	Bundles []BundleEntry `json:"bundles" yaml:"bundles"`
	Assets  []AssetEntry  `json:"assets" yaml:"assets"`

	indexMu     sync.Mutex
	bundleIndex map[string]int
	assetIndex  map[string]int
}

// BundleEntry is the unit of transfer and retry
type BundleEntry struct {
	Name     string   `json:"name" yaml:"name"`
	FileName string   `json:"file_name" yaml:"file_name"`
	Size     int64    `json:"size" yaml:"size"`
	Hash     string   `json:"hash" yaml:"hash"` // hex sha256
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// AssetEntry maps a loadable location to the bundle holding it
type AssetEntry struct {
	Location string   `json:"location" yaml:"location"`
	Bundle   string   `json:"bundle" yaml:"bundle"`
	Depends  []string `json:"depends,omitempty" yaml:"depends,omitempty"`
}

// HasTag reports whether the bundle carries any of the given tags
func (b BundleEntry) HasTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range b.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Validate checks references and builds the lookup indexes
func (m *Manifest) Validate() error {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	return m.validateLocked()
}

func (m *Manifest) validateLocked() error {
	bundleIndex := make(map[string]int, len(m.Bundles))
	for i, b := range m.Bundles {
		if b.Name == "" {
			return fmt.Errorf("%w: bundle %d has no name", ErrCorruptManifest, i)
		}
		if _, dup := bundleIndex[b.Name]; dup {
			return fmt.Errorf("%w: duplicate bundle %s", ErrCorruptManifest, b.Name)
		}
		if b.Size < 0 {
			return fmt.Errorf("%w: bundle %s has negative size", ErrCorruptManifest, b.Name)
		}
		if b.FileName == "" {
			m.Bundles[i].FileName = b.Name
		}
		bundleIndex[b.Name] = i
	}

	assetIndex := make(map[string]int, len(m.Assets))
	for i, a := range m.Assets {
		if _, ok := bundleIndex[a.Bundle]; !ok {
			return fmt.Errorf("%w: asset %s references unknown bundle %s", ErrCorruptManifest, a.Location, a.Bundle)
		}
		for _, dep := range a.Depends {
			if _, ok := bundleIndex[dep]; !ok {
				return fmt.Errorf("%w: asset %s depends on unknown bundle %s", ErrCorruptManifest, a.Location, dep)
			}
		}
		assetIndex[a.Location] = i
	}

	// published indexes are never mutated, only replaced
	m.bundleIndex, m.assetIndex = bundleIndex, assetIndex
	return nil
}

// indexes returns the lookup indexes, building them for a manifest that
// skipped Validate. Safe for concurrent readers.
func (m *Manifest) indexes() (bundles, assets map[string]int) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	if m.bundleIndex == nil || m.assetIndex == nil {
		_ = m.validateLocked()
	}
	return m.bundleIndex, m.assetIndex
}

// Bundle looks up a bundle by name
func (m *Manifest) Bundle(name string) (BundleEntry, bool) {
	bundleIndex, _ := m.indexes()
	i, ok := bundleIndex[name]
	if !ok {
		return BundleEntry{}, false
	}
	return m.Bundles[i], true
}

// HasLocation reports whether an asset location is part of this manifest
func (m *Manifest) HasLocation(location string) bool {
	_, assetIndex := m.indexes()
	_, ok := assetIndex[location]
	return ok
}

// BundlesForLocation returns the main bundle of an asset followed by its dependencies
func (m *Manifest) BundlesForLocation(location string) ([]BundleEntry, error) {
	bundleIndex, assetIndex := m.indexes()
	i, ok := assetIndex[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, location)
	}
	asset := m.Assets[i]
	out := []BundleEntry{m.Bundles[bundleIndex[asset.Bundle]]}
	for _, dep := range asset.Depends {
		out = append(out, m.Bundles[bundleIndex[dep]])
	}
	return out, nil
}

// Select resolves a selection to a deduplicated bundle list
func (m *Manifest) Select(sel Selection) ([]BundleEntry, error) {
	m.indexes()
	seen := make(map[string]bool)
	var out []BundleEntry
	add := func(b BundleEntry) {
		if !seen[b.Name] {
			seen[b.Name] = true
			out = append(out, b)
		}
	}

	switch s := sel.(type) {
	case ByTag:
		for _, b := range m.Bundles {
			if len(s.Tags) == 0 || b.HasTag(s.Tags) {
				add(b)
			}
		}
	case ByPath:
		for _, loc := range s.Paths {
			bundles, err := m.BundlesForLocation(loc)
			if err != nil {
				return nil, err
			}
			for _, b := range bundles {
				add(b)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported selection %T", sel)
	}
	return out, nil
}

// FileNames returns the set of bundle file names referenced by the manifest
func (m *Manifest) FileNames() map[string]bool {
	m.indexes()
	names := make(map[string]bool, len(m.Bundles))
	for _, b := range m.Bundles {
		names[b.FileName] = true
	}
	return names
}

// Tags returns every tag used in the manifest, sorted
func (m *Manifest) Tags() []string {
	set := make(map[string]bool)
	for _, b := range m.Bundles {
		for _, t := range b.Tags {
			set[t] = true
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
