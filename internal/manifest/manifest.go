// Package manifest reads batch input: a YAML list of filing documents with
// their on-disk content paths. It stands in for the upstream fetch
// collaborator, which is expected to have downloaded and deduplicated the
// documents already.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// Entry is one filing in a manifest file.
type Entry struct {
	model.FilingMetadata `yaml:",inline"`
	Path                 string `yaml:"path"`
}

// Manifest is the top-level manifest document.
type Manifest struct {
	Filings []Entry `yaml:"filings"`
}

// Load parses a manifest file and validates its entries.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}

	seen := make(map[string]bool, len(m.Filings))
	for i, e := range m.Filings {
		if e.ID == "" {
			return nil, eris.Errorf("manifest: entry %d missing id", i)
		}
		if seen[e.ID] {
			return nil, eris.Errorf("manifest: duplicate id %s", e.ID)
		}
		seen[e.ID] = true
		if e.Path == "" {
			return nil, eris.Errorf("manifest: entry %s missing path", e.ID)
		}
	}
	return &m, nil
}

// Documents materializes manifest entries into FilingDocuments, resolving
// relative content paths against the manifest's directory.
func (m *Manifest) Documents(manifestPath string) ([]model.FilingDocument, error) {
	base := filepath.Dir(manifestPath)

	docs := make([]model.FilingDocument, 0, len(m.Filings))
	for _, e := range m.Filings {
		path := e.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "manifest: read content for %s", e.ID)
		}
		docs = append(docs, model.FilingDocument{
			Meta:    e.FilingMetadata,
			Content: content,
		})
	}
	return docs, nil
}
