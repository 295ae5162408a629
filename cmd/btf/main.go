// Copyright 2025 btf Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tensorlab/btf/base"
	"github.com/tensorlab/btf/base/log"
	"github.com/tensorlab/btf/base/progress"
	"github.com/tensorlab/btf/dataset"
	"github.com/tensorlab/btf/model/btf"
)

var btfCommand = &cobra.Command{
	Use:   "btf",
	Short: "Bayesian temporal tensor factorization on a synthetic experiment.",
	Long: "Generates a low-rank tensor with Gaussian noise, hides a fraction of its " +
		"cells, runs the Gibbs sampler and reports held-out imputation accuracy.",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.PersistentFlags()
		debug, _ := flags.GetBool("debug")
		log.SetLogger(flags, debug)

		d1, _ := flags.GetInt("d1")
		d2, _ := flags.GetInt("d2")
		d3, _ := flags.GetInt("d3")
		rank, _ := flags.GetInt("rank")
		lags, _ := flags.GetIntSlice("lags")
		missing, _ := flags.GetFloat64("missing")
		noiseStdDev, _ := flags.GetFloat64("noise")
		burnIn, _ := flags.GetInt("burn-in")
		samples, _ := flags.GetInt("samples")
		horizon, _ := flags.GetInt("horizon")
		verbose, _ := flags.GetInt("verbose")
		noiseMode, _ := flags.GetString("noise-mode")
		seed, _ := flags.GetInt64("seed")

		rng := base.NewRandomGenerator(seed)
		truth := dataset.LowRank(d1, d2, d3, rank, noiseStdDev, rng)
		train := dataset.MaskRandom(truth, missing, rng)

		model := btf.NewBTF(rank, lags).
			SetNoiseMode(btf.NoiseMode(noiseMode)).
			SetSeed(uint64(seed))
		config := btf.NewFitConfig().
			SetBurnIn(burnIn).
			SetSamples(samples).
			SetHorizon(horizon).
			SetVerbose(verbose)

		ctx, root := progress.Start(context.Background(), "experiment", 1)
		bar := progressbar.Default(int64(burnIn+samples), "gibbs")
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if span := root.Child("BTF.Fit"); span != nil {
						_ = bar.Set(span.Count())
					}
				}
			}
		}()

		result, err := model.Fit(ctx, train, truth, config)
		close(done)
		_ = bar.Finish()
		if err != nil {
			log.Logger().Fatal("failed to fit btf", zap.Error(err))
		}
		log.Logger().Info("experiment complete",
			zap.Float64("MAPE", result.Score.MAPE),
			zap.Float64("RMSE", result.Score.RMSE))
	},
}

func init() {
	flags := btfCommand.PersistentFlags()
	flags.Bool("debug", false, "use debug log mode")
	flags.Int("d1", 30, "first tensor dimension")
	flags.Int("d2", 30, "second tensor dimension")
	flags.Int("d3", 60, "number of time steps")
	flags.Int("rank", 10, "CP rank")
	flags.IntSlice("lags", []int{1, 2, 3}, "autoregressive time lags")
	flags.Float64("missing", 0.3, "fraction of cells hidden from the sampler")
	flags.Float64("noise", 0.1, "standard deviation of the generated noise")
	flags.Int("burn-in", 100, "burn-in iteration count")
	flags.Int("samples", 100, "sampling iteration count")
	flags.Int("horizon", 0, "forecast horizon")
	flags.Int("verbose", 10, "metric reporting cadence")
	flags.String("noise-mode", "scalar", "noise precision mode (scalar or fiber)")
	flags.Int64("seed", 0, "random seed")
	log.AddFlags(flags)
}

func main() {
	if err := btfCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
