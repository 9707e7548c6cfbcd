package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/matrix"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Build mapping suggestions",
}

var suggestDisciplinesCmd = &cobra.Command{
	Use:   "disciplines",
	Short: "Rank catalog items against matrix discipline groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := matrix.Load(cfg.Matrix.Path)
		if err != nil {
			return err
		}
		rowGroups, colGroups := matrix.DisciplineGroups(m)

		seen := make(map[string]struct{})
		var disciplines []string
		for _, g := range append(rowGroups, colGroups...) {
			if g == "" {
				continue
			}
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			disciplines = append(disciplines, g)
		}

		count, err := env.builder.BuildDisciplineSuggestions(ctx, disciplines)
		if err != nil {
			return err
		}

		zap.L().Info("suggest disciplines complete",
			zap.Int("disciplines", len(disciplines)),
			zap.Int("suggestions", count),
		)
		return nil
	},
}

var suggestElementsCmd = &cobra.Command{
	Use:   "elements",
	Short: "Rank catalog items against matrix element targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := matrix.Load(cfg.Matrix.Path)
		if err != nil {
			return err
		}
		count, targets, err := env.builder.BuildElementSuggestions(ctx, m)
		if err != nil {
			return err
		}

		zap.L().Info("suggest elements complete",
			zap.Int("targets", len(targets)),
			zap.Int("suggestions", count),
		)
		return nil
	},
}

var (
	suggestCellRow int
	suggestCellCol int
)

var suggestCellCmd = &cobra.Command{
	Use:   "cell",
	Short: "Rank catalog items against a single matrix cell",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.builder.BuildCellSuggestions(ctx, suggestCellRow, suggestCellCol, nil)
		if err != nil {
			return err
		}

		zap.L().Info("suggest cell complete",
			zap.Int64("cell_id", result.CellID),
			zap.Int("suggestions", result.Count),
			zap.Strings("work_types", result.WorkTypes),
		)
		return nil
	},
}

func init() {
	suggestCellCmd.Flags().IntVar(&suggestCellRow, "row", 0, "cell row index")
	suggestCellCmd.Flags().IntVar(&suggestCellCol, "col", 0, "cell column index")
	_ = suggestCellCmd.MarkFlagRequired("row")
	_ = suggestCellCmd.MarkFlagRequired("col")

	suggestCmd.AddCommand(suggestDisciplinesCmd, suggestElementsCmd, suggestCellCmd)
	rootCmd.AddCommand(suggestCmd)
}
