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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/perebench/internal/aggregate"
)

var (
	failRunGlobs  []string
	failOutput    string
	failThreshold float64
)

var extractFailuresCmd = &cobra.Command{
	Use:   "extract-failures",
	Short: "Copy records needing review or scoring below a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := aggregate.ReadRuns(failRunGlobs)
		if err != nil {
			return err
		}

		out, err := os.Create(failOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer out.Close()

		n, err := aggregate.ExtractFailures(out, recs, failThreshold)
		if err != nil {
			return err
		}
		fmt.Printf("Extracted %d of %d records → %s\n", n, len(recs), failOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractFailuresCmd)

	extractFailuresCmd.Flags().StringSliceVar(&failRunGlobs, "runs", nil, "Run JSONL glob patterns (required)")
	extractFailuresCmd.Flags().StringVar(&failOutput, "output", "", "Output file (required)")
	extractFailuresCmd.Flags().Float64Var(&failThreshold, "threshold", 0.9, "Overall-score threshold")

	extractFailuresCmd.MarkFlagRequired("runs")
	extractFailuresCmd.MarkFlagRequired("output")
}
