package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register data sources from a YAML file",
	Long: `Register the data sources listed in a YAML seed file.
Existing sources with the same tenant and name are updated in place.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "sources.yaml", "seed file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	seed, err := config.LoadSeedFile(seedFile)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, s := range seed.Sources {
		if err := seedSource(ctx, a.datasources, a.tenantContext, s); err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}
		logger.Info("Seeded data source", zap.String("tenant_id", s.TenantID.String()), zap.String("name", s.Name))
	}
	return nil
}

// seedSource creates s, or updates the tenant's source of the same name.
func seedSource(ctx context.Context, ds services.DatasourceService, tenantContext services.TenantContextFunc, s config.SeedSource) error {
	in, err := seedInput(s)
	if err != nil {
		return err
	}
	tenantCtx, cleanup, err := tenantContext(ctx, s.TenantID)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = ds.Create(tenantCtx, s.TenantID, in)
	if !errors.Is(err, apperrors.ErrConflict) {
		return err
	}
	existing, err := ds.GetByName(tenantCtx, s.TenantID, s.Name)
	if err != nil {
		return err
	}
	_, err = ds.Update(tenantCtx, s.TenantID, existing.ID, in)
	return err
}

func seedInput(s config.SeedSource) (*services.DataSourceInput, error) {
	in := &services.DataSourceInput{
		Name: s.Name,
		Kind: models.SourceKind(s.Type),
		Policy: models.Policy{
			ReadOnly:       s.Policy.ReadOnly,
			MaxRows:        s.Policy.MaxRows,
			TimeoutSeconds: s.Policy.TimeoutSeconds,
		},
	}
	if s.Config != nil {
		raw, err := json.Marshal(s.Config)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		in.Config = raw
	}
	return in, nil
}
