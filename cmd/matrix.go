package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/matrix"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Sync and export the collision matrix",
}

var matrixSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert cell keys from the matrix CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		m, err := matrix.Load(cfg.Matrix.Path)
		if err != nil {
			return err
		}
		keys := matrix.CellKeys(m)
		inserted, err := st.BulkUpsertCellKeys(ctx, keys)
		if err != nil {
			return err
		}

		zap.L().Info("matrix sync complete",
			zap.Int("cells", len(keys)),
			zap.Int("upserted", inserted),
		)
		return nil
	},
}

var matrixExportOut string

var matrixExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the matrix with cost and risk estimates as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		keys, err := st.ListCellKeys(ctx)
		if err != nil {
			return err
		}
		summaries, err := st.CellSummaries(ctx)
		if err != nil {
			return err
		}
		out, err := matrix.Export(keys, summaries)
		if err != nil {
			return err
		}

		if err := os.WriteFile(matrixExportOut, out, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", matrixExportOut)
		}
		zap.L().Info("matrix export complete",
			zap.Int("cells", len(keys)),
			zap.String("out", matrixExportOut),
		)
		return nil
	},
}

func init() {
	matrixExportCmd.Flags().StringVar(&matrixExportOut, "out", "matrix_export.csv", "output CSV path")
	matrixCmd.AddCommand(matrixSyncCmd, matrixExportCmd)
	rootCmd.AddCommand(matrixCmd)
}
