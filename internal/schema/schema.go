// Package schema maps logical catalog fields to the field names used by
// each remote table.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/alorle/catalog-sync/internal/catalog"
)

// Logical field names used by the importer.
const (
	FieldTitle    = "title"
	FieldURL      = "url"
	FieldImage    = "image"
	FieldCategory = "category"
	FieldType     = "type"
	FieldTvgID    = "tvg_id"
	FieldContent  = "content"
	FieldSeason   = "season"
	FieldEpisode  = "episode"
)

// Table describes how a remote table stores catalog data.
//
// Fields maps a logical field to the remote column name. Unmapped logical
// fields use their logical name.
type Table struct {
	IdentityField     string            `yaml:"identity_field"`
	URLField          string            `yaml:"url_field"`
	SecondaryURLField string            `yaml:"secondary_url_field,omitempty"`
	Fields            map[string]string `yaml:"fields,omitempty"`
}

// Field returns the remote column for a logical field.
func (t Table) Field(logical string) string {
	if name, ok := t.Fields[logical]; ok && name != "" {
		return name
	}
	return logical
}

// Schema is the per-table mapping.
type Schema map[catalog.TableKind]Table

// Default returns the mapping matching the stock catalog tables.
func Default() Schema {
	return Schema{
		catalog.TableContents: {
			IdentityField:     FieldTitle,
			URLField:          FieldURL,
			SecondaryURLField: FieldImage,
		},
		catalog.TableEpisodes: {
			IdentityField:     FieldTitle,
			URLField:          FieldURL,
			SecondaryURLField: FieldImage,
		},
		catalog.TableBanners: {
			IdentityField:     FieldTitle,
			URLField:          "link",
			SecondaryURLField: FieldImage,
		},
		catalog.TableCategories: {
			IdentityField: "name",
			URLField:      FieldImage,
		},
	}
}

// Table returns the mapping for kind.
func (s Schema) Table(kind catalog.TableKind) (Table, error) {
	t, ok := s[kind]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", catalog.ErrUnknownTable, kind)
	}
	return t, nil
}

// Load reads a schema file and merges it over Default.
// A missing file is not an error and yields Default.
func Load(path string) (Schema, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var file map[catalog.TableKind]Table
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	for kind, t := range file {
		if _, err := catalog.ParseTableKind(string(kind)); err != nil {
			return nil, err
		}
		if t.IdentityField == "" || t.URLField == "" {
			return nil, fmt.Errorf("schema for %s: identity_field and url_field are required", kind)
		}
		s[kind] = t
	}

	return s, nil
}

// LoadOrInit loads the schema at path. When the file does not exist it
// writes Default there so operators get an editable starting point, and
// reports created.
func LoadOrInit(path string) (s Schema, created bool, err error) {
	if path == "" {
		return Default(), false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s = Default()
		if err := s.Save(path); err != nil {
			return nil, false, err
		}
		return s, true, nil
	}
	s, err = Load(path)
	return s, false, err
}

// Save writes the schema as YAML, creating parent directories.
func (s Schema) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	return nil
}
