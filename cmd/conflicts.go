package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	conflictsAll bool
	resolveNote  string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <deal>",
	Short: "List a deal's data conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openExistingDeal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer env.Close()

		conflicts, err := env.store.ListConflicts(cmd.Context(), !conflictsAll)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(conflicts, "", "  ")
		cmd.Println(string(out))
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <deal> <conflict-id>",
	Short: "Mark a conflict resolved with an explanatory note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, conflictID := args[0], args[1]

		env, err := openExistingDeal(cmd.Context(), dealID)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.ResolveConflict(cmd.Context(), conflictID, resolveNote); err != nil {
			return err
		}
		zap.L().Info("conflict resolved",
			zap.String("deal", dealID),
			zap.String("conflict", conflictID),
		)
		cmd.Printf("resolved %s\n", conflictID)
		return nil
	},
}

func init() {
	conflictsCmd.Flags().BoolVar(&conflictsAll, "all", false, "include resolved conflicts")
	resolveCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note recorded on the conflict")
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)
}
