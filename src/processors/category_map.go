package processors

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"gopkg.in/yaml.v3"
)

const (
	CategoryModeProvider   = "provider"
	CategoryModeNormalized = "normalized"
	DefaultCategory        = "Other"
)

// CategoryMap decides the stored category of a transaction. In provider mode the
// provider's first label is kept as-is; in normalized mode labels are looked up
// in a per-provider table.
type CategoryMap struct {
	Mode      string                       `yaml:"mode"`
	Default   string                       `yaml:"default"`
	Providers map[string]map[string]string `yaml:"providers"`
}

// DefaultCategoryMap keeps provider labels and falls back to "Other".
func DefaultCategoryMap() *CategoryMap {
	return &CategoryMap{Mode: CategoryModeProvider, Default: DefaultCategory}
}

// LoadCategoryMap reads the YAML file at path. A missing file yields the default map.
func LoadCategoryMap(path string) (*CategoryMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.L.Info("Category map not found, keeping provider categories", "path", path)
		return DefaultCategoryMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read category map %s: %w", path, err)
	}
	return ParseCategoryMap(data)
}

func ParseCategoryMap(data []byte) (*CategoryMap, error) {
	m := DefaultCategoryMap()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse category map: %w", err)
	}
	m.Mode = strings.ToLower(strings.TrimSpace(m.Mode))
	switch m.Mode {
	case "":
		m.Mode = CategoryModeProvider
	case CategoryModeProvider, CategoryModeNormalized:
	default:
		return nil, fmt.Errorf("parse category map: unknown mode %q", m.Mode)
	}
	if strings.TrimSpace(m.Default) == "" {
		m.Default = DefaultCategory
	}

	// Lookups are case-insensitive.
	for provider, table := range m.Providers {
		lowered := make(map[string]string, len(table))
		for label, category := range table {
			lowered[strings.ToLower(strings.TrimSpace(label))] = category
		}
		m.Providers[provider] = lowered
	}
	return m, nil
}

// Resolve returns the category to store for a provider label.
func (m *CategoryMap) Resolve(provider models.Provider, label string) string {
	label = strings.TrimSpace(label)
	if m.Mode == CategoryModeNormalized {
		if category, ok := m.Providers[string(provider)][strings.ToLower(label)]; ok && category != "" {
			return category
		}
		return m.Default
	}
	if label == "" {
		return m.Default
	}
	return label
}
