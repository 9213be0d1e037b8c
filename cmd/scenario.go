package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealroom-cli/internal/queryengine"
)

var (
	scenarioSets    []string
	scenarioMetrics []string
	scenarioCase    string
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <deal>",
	Short: "Evaluate a what-if scenario against a deal",
	Long: "Applies assumption overrides on top of a base case and computes the requested " +
		"metrics. Time-value-of-money metrics (NPV, IRR, payback, decline) are delegated to " +
		"the external finance calculator; everything else is recomputed in process from the " +
		"stored spreadsheet formulas.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseOverrides(scenarioSets)
		if err != nil {
			return err
		}

		env, err := openExistingDeal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.engine.RunScenario(cmd.Context(), queryengine.ScenarioRequest{
			BaseCase:  scenarioCase,
			Overrides: overrides,
			Metrics:   scenarioMetrics,
		})
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(res, "", "  ")
		cmd.Println(string(out))
		return nil
	},
}

// parseOverrides turns repeated --set key=value flags into a map.
func parseOverrides(sets []string) (map[string]float64, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	overrides := make(map[string]float64, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, eris.Errorf("malformed override %q, expected key=value", s)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "override %s is not numeric", key)
		}
		overrides[key] = v
	}
	return overrides, nil
}

func init() {
	scenarioCmd.Flags().StringArrayVar(&scenarioSets, "set", nil, "assumption override as key=value, repeatable")
	scenarioCmd.Flags().StringSliceVar(&scenarioMetrics, "metric", nil, "output metric to compute, repeatable")
	scenarioCmd.Flags().StringVar(&scenarioCase, "case", "", "base case name (default base_case)")
	rootCmd.AddCommand(scenarioCmd)
}
