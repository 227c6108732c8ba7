package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wolfinder/badges/internal/adapters/repository"
	app "github.com/wolfinder/badges/internal/app"
	"github.com/wolfinder/badges/internal/config"
	"github.com/wolfinder/badges/internal/domain/catalog"
	"github.com/wolfinder/badges/internal/domain/requirement"
	"github.com/wolfinder/badges/pkg/logger"
)

// ErrMemoryStorage is returned by commands that need a database.
var ErrMemoryStorage = errors.New("command needs storage_driver sqlite or postgres")

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dialect, err := c.dialect()
			if err != nil {
				return err
			}
			v, err := repository.Migrate(cmd.Context(), dialect, c.cfg.StorageDSN,
				repository.WithPingTimeout(c.cfg.DBPingTimeout))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return err
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the badge catalog into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.seed(cmd)
		},
	}
}

func (c *cli) seed(cmd *cobra.Command) error {
	ctx := cmd.Context()
	dialect, err := c.dialect()
	if err != nil {
		return err
	}

	cat, err := c.catalog()
	if err != nil {
		return err
	}

	store, err := repository.OpenSQL(ctx, dialect, c.cfg.StorageDSN,
		repository.WithPingTimeout(c.cfg.DBPingTimeout))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SeedCatalog(ctx, cat.All()); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	c.log.Info(ctx, "catalog seeded",
		logger.String("catalog_version", cat.Version()),
		logger.Int("badges", cat.Len()),
	)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d badges\n", cat.Len())
	return err
}

func (c *cli) evaluateCmd() *cobra.Command {
	var award, decay bool
	cmd := &cobra.Command{
		Use:   "evaluate <professional-id>",
		Short: "Evaluate every badge for one professional and print the results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid professional id %q", args[0])
			}
			return c.evaluate(cmd, id, award, decay)
		},
	}
	cmd.Flags().BoolVar(&award, "award", false, "award every earned automatic badge")
	cmd.Flags().BoolVar(&decay, "decay", false, "run a decay sweep before evaluating")
	return cmd
}

func (c *cli) evaluate(cmd *cobra.Command, id int64, award, decay bool) error {
	ctx := cmd.Context()
	cfg := *c.cfg
	cfg.DecaySweepInterval = 0

	svc := app.New(app.WithConfig(&cfg), app.WithLogger(c.log))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		_ = svc.Stop(stopCtx)
	}()

	out := map[string]any{"professional_id": id}
	if decay {
		report, err := svc.DecaySweep(ctx, id)
		if err != nil {
			return err
		}
		out["decay"] = report
	}
	if award {
		report, err := svc.AwardPass(ctx, id)
		if err != nil {
			return err
		}
		out["award"] = report
	} else {
		results, err := svc.EvaluateAll(ctx, id)
		if err != nil {
			return err
		}
		out["results"] = results
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
	// Printing the version needs neither config nor logging.
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error { return nil }
	return cmd
}

func (c *cli) dialect() (repository.Dialect, error) {
	if c.cfg.StorageDriver == config.StorageMemory {
		return "", ErrMemoryStorage
	}
	return repository.ParseDialect(c.cfg.StorageDriver)
}

func (c *cli) catalog() (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if c.cfg.CatalogPath != "" {
		cat, err = catalog.Load(c.cfg.CatalogPath)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := cat.Validate(requirement.DefaultRegistry()); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return cat, nil
}
