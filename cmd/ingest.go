package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/vdr"
)

var (
	ingestManifest string
	ingestCategory string
	ingestLabel    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <deal> <root>",
	Short: "Ingest a full data room for a deal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, root := args[0], args[1]

		env, err := openDeal(cmd.Context(), dealID)
		if err != nil {
			return err
		}
		defer env.Close()

		var lister vdr.Lister = fsLister{}
		if ingestManifest != "" {
			lister = manifestLister{path: ingestManifest}
		}
		listing, err := lister.List(cmd.Context(), root)
		if err != nil {
			return err
		}

		summary, err := env.orchestrator.IngestVDR(cmd.Context(), root, listing)
		if err != nil {
			return err
		}
		summary.DealID = dealID

		out, _ := json.MarshalIndent(summary, "", "  ")
		cmd.Println(string(out))

		if summary.Status == model.RunFailed {
			return eris.Errorf("ingestion run failed: %d of %d files failed",
				summary.FilesFailed, summary.FilesListed)
		}
		return nil
	},
}

var ingestFileCmd = &cobra.Command{
	Use:   "ingest-file <deal> <path>",
	Short: "Ingest a single file into a deal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, path := args[0], args[1]
		if _, err := os.Stat(path); err != nil {
			return eris.Wrapf(err, "stat %s", path)
		}

		env, err := openDeal(cmd.Context(), dealID)
		if err != nil {
			return err
		}
		defer env.Close()

		fr := env.orchestrator.IngestFile(cmd.Context(), path, vdr.Entry{
			Path:     path,
			Category: ingestCategory,
			Label:    ingestLabel,
		})
		out, _ := json.MarshalIndent(fr, "", "  ")
		cmd.Println(string(out))

		if fr.Status == model.DocFailed {
			return eris.Errorf("ingestion failed at %s: %s", fr.Phase, fr.Error)
		}
		zap.L().Info("file ingested",
			zap.String("deal", dealID),
			zap.Int("facts", fr.FactsAdded),
			zap.Int("conflicts", fr.Conflicts),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestManifest, "manifest", "", "JSON listing from the classification collaborator")
	ingestFileCmd.Flags().StringVar(&ingestCategory, "category", "financial_model", "document category")
	ingestFileCmd.Flags().StringVar(&ingestLabel, "label", "", "entity label, e.g. the field or asset name")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(ingestFileCmd)
}
