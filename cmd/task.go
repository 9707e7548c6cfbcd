package main

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/model"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run and inspect background tasks",
}

var taskRunCmd = &cobra.Command{
	Use:   "run <type>",
	Short: "Run one background task and wait for it to finish",
	Long:  "Task types: sync_cells, build_cell_suggestions_all, auto_approve_elements, compute_collisions_all, compute_risk_all.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		typ := model.TaskType(args[0])
		if !model.KnownTaskType(typ) {
			return eris.Errorf("unknown task type: %s", args[0])
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := env.runner.Start(ctx, typ)
		if err != nil {
			return err
		}
		zap.L().Info("task started", zap.Int64("id", id), zap.String("type", string(typ)))

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		lastProgress := -1
		for {
			select {
			case <-ctx.Done():
				// The polling context is gone; cancel with a fresh one.
				return env.runner.Cancel(context.Background(), id)
			case <-ticker.C:
			}

			t, err := env.store.GetTask(ctx, id)
			if err != nil {
				return err
			}
			if t == nil {
				return eris.Errorf("task disappeared: %d", id)
			}
			if t.Progress != lastProgress {
				lastProgress = t.Progress
				zap.L().Info("task progress",
					zap.Int64("id", id),
					zap.Int("progress", t.Progress),
					zap.String("message", t.Message),
				)
			}
			switch t.Status {
			case model.TaskDone:
				zap.L().Info("task done", zap.Int64("id", id))
				return nil
			case model.TaskError:
				return eris.Errorf("task failed: %s", t.Message)
			}
		}
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tasks, err := env.store.ListTasks(ctx, 50)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			zap.L().Info("task",
				zap.Int64("id", t.ID),
				zap.String("type", string(t.Type)),
				zap.String("status", string(t.Status)),
				zap.Int("progress", t.Progress),
				zap.String("message", t.Message),
			)
		}
		return nil
	},
}

var taskLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show a task's log entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("numeric task id required, got %q", args[0])
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		logs, err := env.store.ListTaskLogs(ctx, id, 200)
		if err != nil {
			return err
		}
		for _, l := range logs {
			zap.L().Info("task log",
				zap.Int64("task_id", l.TaskID),
				zap.String("level", string(l.Level)),
				zap.String("message", l.Message),
				zap.Any("payload", l.Payload),
			)
		}
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskRunCmd, taskListCmd, taskLogsCmd)
	rootCmd.AddCommand(taskCmd)
}
