/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/perebench/internal/config"
	"github.com/valpere/perebench/internal/dataset"
	"github.com/valpere/perebench/internal/record"
	"github.com/valpere/perebench/internal/runner"
)

var (
	runConfigFile string
	runInputFile  string
	runOutputFile string
	runConditions []string
	runID         string
	runOverwrite  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an entire experiment over a dataset",
	Long: `Run every (sample, condition) pair of an experiment and append one
RunRecord per pair to the output JSONL file.

SIGINT stops admission of new pairs; in-flight pairs complete and are
still written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigFile)
		if err != nil {
			return err
		}

		samples, err := dataset.ReadFile(runInputFile)
		if err != nil {
			return err
		}

		conditions := runConditions
		if len(conditions) == 0 {
			conditions = record.Conditions
		}
		for _, cond := range conditions {
			if _, ok := record.CapabilitiesFor(cond); !ok {
				return fmt.Errorf("unknown condition %q", cond)
			}
		}

		id := runID
		if id == "" {
			id = uuid.New().String()
		}

		out, err := createOutput(runOutputFile, runOverwrite)
		if err != nil {
			return err
		}
		defer out.Close()

		r, err := runner.Build(cfg, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := r.Run(ctx, id, samples, conditions, out, nil); err != nil {
			return err
		}

		fmt.Printf("Run %s completed: %d samples × %d conditions → %s\n",
			id, len(samples), len(conditions), runOutputFile)
		return nil
	},
}

// createOutput opens the output file, refusing to clobber an existing one
// unless overwrite is set.
func createOutput(path string, overwrite bool) (*os.File, error) {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("output file %s exists (use --overwrite)", path)
		}
	}
	return os.Create(path)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runConfigFile, "config", "", "Experiment configuration file (YAML or JSON, required)")
	runCmd.Flags().StringVar(&runInputFile, "input", "", "Dataset JSONL file (required)")
	runCmd.Flags().StringVar(&runOutputFile, "output", "", "Output JSONL file (required)")
	runCmd.Flags().StringSliceVar(&runConditions, "conditions", nil, "Conditions to run (default A0,A1,A2,A3)")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")
	runCmd.Flags().BoolVar(&runOverwrite, "overwrite", false, "Overwrite the output file if it exists")

	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("output")
}
