package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cmw-cli/internal/catalog"
	"github.com/sells-group/cmw-cli/internal/model"
)

var (
	importCSVPaths  []string
	importXLSXPaths []string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import price catalog files into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if len(importCSVPaths) == 0 && len(importXLSXPaths) == 0 {
			return eris.New("at least one --csv or --xlsx file is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var mu sync.Mutex
		var rows []model.PriceRow

		g, gctx := errgroup.WithContext(ctx)
		for _, path := range importCSVPaths {
			path := path
			g.Go(func() error {
				f, err := os.Open(path)
				if err != nil {
					return eris.Wrapf(err, "open %s", path)
				}
				defer f.Close()

				parsed, err := catalog.ReadCSV(gctx, f, cfg.Catalog.Source, filepath.Base(path))
				if err != nil {
					return eris.Wrapf(err, "parse %s", path)
				}
				mu.Lock()
				rows = append(rows, parsed...)
				mu.Unlock()
				return nil
			})
		}
		for _, path := range importXLSXPaths {
			path := path
			g.Go(func() error {
				parsed, err := catalog.ReadXLSX(path, cfg.Catalog.Source, filepath.Base(path))
				if err != nil {
					return eris.Wrapf(err, "parse %s", path)
				}
				mu.Lock()
				rows = append(rows, parsed...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		rows = catalog.Dedupe(rows)
		inserted, err := st.UpsertPrices(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "upsert prices")
		}

		zap.L().Info("catalog import complete",
			zap.Int("parsed", len(rows)),
			zap.Int("upserted", inserted),
			zap.Int("files", len(importCSVPaths)+len(importXLSXPaths)),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringSliceVar(&importCSVPaths, "csv", nil, "CSV catalog file (repeatable)")
	importCmd.Flags().StringSliceVar(&importXLSXPaths, "xlsx", nil, "XLSX catalog file (repeatable)")
	rootCmd.AddCommand(importCmd)
}
