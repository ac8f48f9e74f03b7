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
	aggRunGlobs []string
	aggOutput   string
	aggFormat   string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Summarize run JSONL files into per-condition rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := aggregate.ReadRuns(aggRunGlobs)
		if err != nil {
			return err
		}
		rows := aggregate.Summarize(recs)

		out, err := os.Create(aggOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer out.Close()

		if err := aggregate.WriteRows(out, rows, aggFormat); err != nil {
			return err
		}
		fmt.Printf("Aggregated %d records into %d rows → %s\n", len(recs), len(rows), aggOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	aggregateCmd.Flags().StringSliceVar(&aggRunGlobs, "runs", nil, "Run JSONL glob patterns (required)")
	aggregateCmd.Flags().StringVar(&aggOutput, "output", "", "Output file (required)")
	aggregateCmd.Flags().StringVar(&aggFormat, "format", "json", "Output format (json|csv)")

	aggregateCmd.MarkFlagRequired("runs")
	aggregateCmd.MarkFlagRequired("output")
}
