// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/curioloop/mma/benchmark"
	"github.com/curioloop/mma/config"
	"github.com/curioloop/mma/driver"
	"github.com/curioloop/mma/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run [problem...]",
	Short: "Solve benchmark problems concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cfg.Problems = config.ProblemList(args...)
		}
		log, err := setupLogger(cfg.Log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runProblems(ctx, cfg, log, cmd.OutOrStdout())
	},
}

func runFlags(fs *pflag.FlagSet) {
	fs.String("variant", "", "subproblem variant: mma or gcmma")
	fs.Float64("rel-tol", 0, "stop once the largest design change is below this value")
	fs.Int("max-iters", 0, "outer iteration limit")
	fs.Int("min-iters", 0, "minimum number of outer iterations")
	fs.Float64("move-limit", 0, "MMA move limit as a fraction of the variable range")
	fs.String("filter", "", "sensitivity filter: none, sensitivity or density")
	fs.Bool("kkt-check", false, "report the KKT residual of every iteration")
	fs.Bool("gradient-check", false, "verify the analytic derivatives by finite differences")
	fs.String("metrics-listen", "", "serve prometheus metrics on this address")
	fs.StringSlice("problem", nil, "benchmark problems to solve (default all)")
}

// runProblems solves every configured problem in its own goroutine and
// prints one summary line per problem to out.
func runProblems(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, out io.Writer) error {

	names := cfg.Problems
	if len(names) == 0 {
		names = benchmark.Names()
	}
	benches := make([]benchmark.Benchmark, len(names))
	for i, name := range names {
		b, err := benchmark.Lookup(name)
		if err != nil {
			return err
		}
		benches[i] = b
	}

	collector := metrics.New()
	registry := prometheus.NewRegistry()
	if err := collector.Register(registry); err != nil {
		return err
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if addr := cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Listen(serveCtx, addr, registry); err != nil {
				log.WithError(err).Error("metrics endpoint stopped")
			}
		}()
		log.WithField("addr", addr).Info("serving metrics")
	}

	results := make([]*driver.Result, len(benches))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range benches {
		g.Go(func() error {
			p := b.New()
			opts, err := cfg.Options(p.N, p.M)
			if err != nil {
				return err
			}
			opts.Logger, opts.Recorder = log, collector
			res, err := driver.Run(gctx, p, opts)
			if err != nil {
				return errors.Wrapf(err, "problem %s", b.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report(out, benches, results)
	return nil
}

func report(out io.Writer, benches []benchmark.Benchmark, results []*driver.Result) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROBLEM\tITERS\tF0\tKNOWN\tKKT\tSTATUS")
	for i, res := range results {
		fmt.Fprintf(w, "%s\t%d\t%.6g\t%.6g\t%.2e\t%s\n",
			benches[i].Name, res.Iters, res.F0, benches[i].F0, res.KKT, res.Status)
	}
	w.Flush()
}
