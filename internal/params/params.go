// Package params decodes and migrates the versioned parameter documents that
// describe a scrape run.
package params

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/urlscraper/internal/urlsource"
)

// Params is the current (v3) parameter schema.
type Params struct {
	URLSource      string `yaml:"urlsource" json:"urlsource"`
	URLList        string `yaml:"urllist" json:"urllist"`
	URLColumn      string `yaml:"urlcol" json:"urlcol"`
	PagedURL       string `yaml:"pagedurl" json:"pagedurl"`
	AddPageNumbers bool   `yaml:"addpagenumbers" json:"addpagenumbers"`
	StartPage      int    `yaml:"startpage" json:"startpage"`
	EndPage        int    `yaml:"endpage" json:"endpage"`
}

// Load reads a YAML (or JSON) params document from path.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied params file.
	if err != nil {
		return Params{}, fmt.Errorf("read params: %w", err)
	}
	return Read(bytes.NewReader(data))
}

// Read decodes a params document of any schema version.
func Read(r io.Reader) (Params, error) {
	raw := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return Params{}, fmt.Errorf("decode params: %w", err)
	}
	return FromMap(raw)
}

// FromMap migrates raw to the current schema and decodes it.
func FromMap(raw map[string]any) (Params, error) {
	if _, ok := raw["urlsource"]; !ok {
		return Params{}, fmt.Errorf("decode params: urlsource is required")
	}
	migrated, err := Migrate(raw)
	if err != nil {
		return Params{}, err
	}
	data, err := yaml.Marshal(migrated)
	if err != nil {
		return Params{}, fmt.Errorf("encode migrated params: %w", err)
	}
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("decode params: %w", err)
	}
	return p, nil
}

// Source converts p into a URL source. input feeds the column source and may
// be nil otherwise.
func (p Params) Source(input *urlsource.Input) urlsource.Source {
	return urlsource.Source{
		Kind:           urlsource.Kind(p.URLSource),
		List:           p.URLList,
		Column:         p.URLColumn,
		Input:          input,
		PagedURL:       p.PagedURL,
		AddPageNumbers: p.AddPageNumbers,
		StartPage:      p.StartPage,
		EndPage:        p.EndPage,
	}
}
