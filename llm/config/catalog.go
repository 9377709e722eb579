package config

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// catalogFile is the shape of catalog.yaml.
type catalogFile struct {
	Models []catalogModel `yaml:"models"`
}

type catalogModel struct {
	ID           string   `yaml:"id"`
	Provider     string   `yaml:"provider"`
	Capabilities []string `yaml:"capabilities"`
	Cost         float64  `yaml:"cost"`
	Quality      float64  `yaml:"quality"`
	MaxTokens    int      `yaml:"maxTokens"`
	Priority     int      `yaml:"priority"`
}

// LoadDefaultCatalog parses the embedded default model catalog.
func LoadDefaultCatalog() ([]*ModelInfo, error) {
	var file catalogFile
	if err := yaml.Unmarshal(defaultCatalogYAML, &file); err != nil {
		return nil, fmt.Errorf("config: parse default catalog: %w", err)
	}
	infos := make([]*ModelInfo, len(file.Models))
	for i, m := range file.Models {
		infos[i] = &ModelInfo{
			ID:           m.ID,
			Provider:     m.Provider,
			Capabilities: m.Capabilities,
			Cost:         m.Cost,
			Quality:      m.Quality,
			MaxTokens:    m.MaxTokens,
			Priority:     m.Priority,
			Available:    true,
		}
	}
	return infos, nil
}

// SeedDefaultCatalog writes every default-catalog model into registry that
// doesn't already have a row, so an operator's prior edits are never
// overwritten by a restart.
func SeedDefaultCatalog(ctx context.Context, registry *Registry, logger *zap.Logger) error {
	defaults, err := LoadDefaultCatalog()
	if err != nil {
		return err
	}
	for _, model := range defaults {
		if _, err := registry.GetModelConfig(ctx, model.ID); err == nil {
			continue
		}
		if err := registry.SetModelConfig(ctx, model); err != nil {
			logger.Warn("failed to seed default model", zap.String("model", model.ID), zap.Error(err))
		}
	}
	return registry.RefreshModels(ctx)
}
