package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/model"
	"github.com/transferlens/transferlens/internal/persistence"
)

var (
	trainAsOf     string
	trainHorizon  int
	trainType     string
	trainLookback int
	evalVersion   string
	evalHorizon   int
	evalLookback  int
	listLimit     int
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Model training and registry operations",
}

var modelTrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a transfer probability model",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(trainAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.trainer().Train(cmd.Context(), model.TrainRequest{
			AsOf:         asOf,
			HorizonDays:  trainHorizon,
			ModelType:    trainType,
			LookbackDays: trainLookback,
			MinSamples:   a.cfg.Model.MinTrainingSamples,
			TestFraction: a.cfg.Model.TestSplitFraction,
			Seed:         a.cfg.Model.RandomSeed,
		})
		var insufficient *domain.InsufficientDataError
		if errors.As(err, &insufficient) {
			log.Error().Int("samples", insufficient.Samples).Int("minimum", insufficient.Minimum).
				Msg("Not enough training data")
			return err
		}
		if err != nil {
			return err
		}
		log.Info().
			Str("model", version.ModelName).
			Str("version", version.ModelVersion).
			Int("samples", version.TrainingSamples).
			Interface("metrics", version.Metrics).
			Msg("Training complete")
		return nil
	},
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered model versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.store.Repos.Models.List(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		for _, v := range versions {
			auc := v.Metrics["auc_roc"]
			fmt.Printf("%-22s %-16s h=%-4d status=%-10s samples=%-6d auc=%.3f trained=%s\n",
				v.ModelName, v.ModelVersion, v.HorizonDays, v.Status, v.TrainingSamples, auc,
				v.TrainingAsOf.Format("2006-01-02"))
		}
		return nil
	},
}

var modelEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Backtest a model version over a recent window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		name := model.Name(evalHorizon)
		version, err := resolveModelVersion(cmd, a, name)
		if err != nil {
			return err
		}

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -evalLookback)
		eval, err := a.evaluator().Evaluate(cmd.Context(), version, from, to)
		if err != nil {
			return err
		}
		return printJSON(eval)
	},
}

func resolveModelVersion(cmd *cobra.Command, a *app, name string) (*persistence.ModelVersion, error) {
	if evalVersion != "" {
		v, err := a.store.Repos.Models.GetVersion(cmd.Context(), name, evalVersion)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("model version %s/%s not found", name, evalVersion)
		}
		return v, nil
	}
	v, err := model.LatestUsable(cmd.Context(), a.store.Repos.Models, evalHorizon)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("no usable %s model; train one first", name)
	}
	return v, nil
}

func init() {
	modelTrainCmd.Flags().StringVar(&trainAsOf, "as-of", "", "train as of this time")
	modelTrainCmd.Flags().IntVar(&trainHorizon, "horizon", 90, "horizon in days")
	modelTrainCmd.Flags().StringVar(&trainType, "model-type", "gbt", "model type (logistic|gbt)")
	modelTrainCmd.Flags().IntVar(&trainLookback, "lookback", 365, "label lookback in days")
	modelEvaluateCmd.Flags().StringVar(&evalVersion, "model-version", "", "specific version (default: latest usable)")
	modelEvaluateCmd.Flags().IntVar(&evalHorizon, "horizon", 90, "horizon in days")
	modelEvaluateCmd.Flags().IntVar(&evalLookback, "lookback", 365, "evaluation window in days")
	modelListCmd.Flags().IntVar(&listLimit, "limit", 20, "max versions to list")
	modelCmd.AddCommand(modelTrainCmd, modelListCmd, modelEvaluateCmd)
	rootCmd.AddCommand(modelCmd)
}
