package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/ratingkit/config"
	"github.com/rushteam/ratingkit/core"
	"github.com/rushteam/ratingkit/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ratingkit",
		Short:        "User-based collaborative filtering rating predictor.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path of the YAML config file")
	root.PersistentFlags().StringP("ratings", "r", "", "ratings file to load before running (user<sep>item<sep>score[<sep>...])")
	root.PersistentFlags().String("sep", "\\t", "field separator of the ratings file")

	root.AddCommand(newLoadCommand(), newPredictCommand())
	return root
}

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load a ratings file into the configured store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("ratings").Value.String() == "" {
				return fmt.Errorf("--ratings is required")
			}
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d ratings into %s\n", env.loaded, env.ratings.Name())
			return nil
		},
	}
}

func newPredictCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "predict",
		Short: "Predict the score a user would give an item.",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			itemIDs, _ := cmd.Flags().GetStringSlice("item")
			if userID == "" || len(itemIDs) == 0 {
				return fmt.Errorf("--user and --item are required")
			}

			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			predictor, err := env.cfg.NewPredictor(env.ratings, env.logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if env.cfg.Predict.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, env.cfg.Predict.Timeout)
				defer cancel()
			}
			predictions, err := predictor.PredictMany(ctx, userID, itemIDs)
			if err != nil {
				env.logger.Error("failed to predict", zap.String("user_id", userID), zap.Strings("item_ids", itemIDs), zap.Error(err))
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			for _, itemID := range itemIDs {
				if err := encoder.Encode(predictions[itemID]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	command.Flags().StringP("user", "u", "", "target user id")
	command.Flags().StringSliceP("item", "i", nil, "target item id (repeatable)")
	return command
}

type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	ratings core.RatingBackend
	loaded  int
}

func (e *environment) close() {
	if err := e.ratings.Close(); err != nil {
		e.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// setup 加载配置、构建日志、打开存储，并按需导入评分文件。
func setup(cmd *cobra.Command) (*environment, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	ratings, err := cfg.OpenStore(cmd.Context())
	if err != nil {
		logger.Error("failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
		return nil, err
	}
	env := &environment{cfg: cfg, logger: logger, ratings: ratings}

	path, _ := cmd.Flags().GetString("ratings")
	if path == "" {
		return env, nil
	}
	sep, err := parseSeparator(cmd.Flag("sep").Value.String())
	if err != nil {
		env.close()
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		env.close()
		return nil, err
	}
	defer f.Close()

	env.loaded, err = store.LoadRatings(cmd.Context(), f, ratings, sep)
	if err != nil {
		env.close()
		return nil, err
	}
	logger.Info("loaded ratings", zap.String("path", path), zap.Int("count", env.loaded), zap.String("store", ratings.Name()))
	return env, nil
}

func parseSeparator(s string) (rune, error) {
	switch s {
	case "\\t", "tab", "\t":
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("separator must be a single character, got %q", s)
	}
	return runes[0], nil
}
