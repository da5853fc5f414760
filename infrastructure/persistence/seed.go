package persistence

import (
	"context"
	"fmt"
	"slices"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/sirupsen/logrus"
)

// EnsureModelConfigSeeded fills an empty app_config table from the catalog.
// A populated table is left untouched and reported as not seeded.
func EnsureModelConfigSeeded(ctx context.Context, repo persistence.ModelConfigRepository, c *catalog.Catalog) (bool, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		logrus.WithField("rows", count).Debug("Model config already populated")
		return false, nil
	}

	if err := ResetModelConfig(ctx, repo, c); err != nil {
		return false, err
	}
	return true, nil
}

// ResetModelConfig replaces app_config with every model the catalog lists
func ResetModelConfig(ctx context.Context, repo persistence.ModelConfigRepository, c *catalog.Catalog) error {
	entries := slices.Collect(c.Models())
	if err := repo.Replace(ctx, entries); err != nil {
		return fmt.Errorf("failed to seed model config: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"rows":      len(entries),
		"providers": c.Providers(),
	}).Info("Seeded model config from catalog")
	return nil
}
