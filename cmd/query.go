package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/queryengine"
)

var (
	querySQL      string
	queryTable    string
	queryCategory string
	queryCase     string
	queryKey      string
	queryEntity   string
	queryFrom     string
	queryTo       string
)

var queryCmd = &cobra.Command{
	Use:   "query <deal>",
	Short: "Query a deal's fact tables",
	Long: "Runs either a guarded raw SELECT (--sql) or a named-filter query over one typed " +
		"fact table. Every response lists the cases present and any open conflicts touching " +
		"the returned metrics.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openExistingDeal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer env.Close()

		var res *model.QueryResult
		if querySQL != "" {
			res, err = env.engine.QuerySQL(cmd.Context(), querySQL)
		} else {
			res, err = env.engine.QueryFacts(cmd.Context(), queryengine.Filters{
				Table:       model.FactTable(queryTable),
				Category:    queryCategory,
				CaseName:    queryCase,
				SemanticKey: queryKey,
				Entity:      queryEntity,
				PeriodFrom:  queryFrom,
				PeriodTo:    queryTo,
			})
		}
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(res, "", "  ")
		cmd.Println(string(out))
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&querySQL, "sql", "", "raw SELECT statement (read-only, guarded)")
	queryCmd.Flags().StringVar(&queryTable, "table", "", "fact table, e.g. production_series")
	queryCmd.Flags().StringVar(&queryCategory, "category", "", "semantic category, e.g. production")
	queryCmd.Flags().StringVar(&queryCase, "case", "", "scenario case name")
	queryCmd.Flags().StringVar(&queryKey, "key", "", "semantic key, e.g. oil_production")
	queryCmd.Flags().StringVar(&queryEntity, "entity", "", "entity (field, well, or asset) name")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "inclusive period lower bound, e.g. 2025-01")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "inclusive period upper bound")
	rootCmd.AddCommand(queryCmd)
}
