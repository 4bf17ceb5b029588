// Package catalog holds the reference product records that user photos are
// matched against.
package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one reference product. Entries are read-only once built.
type Entry struct {
	ID          int64  `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	ImagePath   string `yaml:"image_path" json:"image_path"`
	Description string `yaml:"description" json:"description"`
}

type seedFile struct {
	Products []Entry `yaml:"products"`
}

// ParseSeed decodes a YAML seed document of the form
//
//	products:
//	  - id: 1
//	    name: Cola
//	    image_path: images/cola.jpg
//	    description: Contains sugar
func ParseSeed(r io.Reader) ([]Entry, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}

	seen := make(map[int64]struct{}, len(doc.Products))
	for i, e := range doc.Products {
		if e.ID <= 0 {
			return nil, fmt.Errorf("product #%d: id must be positive", i+1)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("product #%d: duplicate id %d", i+1, e.ID)
		}
		seen[e.ID] = struct{}{}
		if strings.TrimSpace(e.ImagePath) == "" {
			return nil, fmt.Errorf("product %d: image_path is required", e.ID)
		}
	}
	return doc.Products, nil
}

// LoadSeed reads and parses a seed file from disk.
func LoadSeed(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSeed(f)
}
