// Package vdr defines the contract with the external data-room
// classification collaborator: something that walks a deal's virtual data
// room and labels each file. The ingestion orchestrator consumes the
// listing; it never classifies files itself.
package vdr

import (
	"context"
	"path/filepath"
	"strings"
)

// Entry is one file in the collaborator's listing, in the collaborator's
// chosen order.
type Entry struct {
	Path       string  `json:"path"`
	Category   string  `json:"category"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Lister produces an ordered listing of a data-room root.
type Lister interface {
	List(ctx context.Context, root string) ([]Entry, error)
}

// DefaultCategories is the standard whitelist of document categories worth
// ingesting numerically. Legal and correspondence categories carry no
// tabular data and are skipped.
var DefaultCategories = []string{
	"financial_model",
	"reserve_report",
	"production_report",
	"cost_report",
	"fiscal_terms",
}

// IngestibleExtensions are the file formats a parser exists for.
var IngestibleExtensions = []string{".xlsx", ".csv", ".pdf"}

// Filter reduces a listing to the entries matching both the category
// whitelist and the extension set, preserving the collaborator's order.
// Empty slices fall back to the defaults.
func Filter(entries []Entry, categories, extensions []string) []Entry {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	if len(extensions) == 0 {
		extensions = IngestibleExtensions
	}

	wantCategory := make(map[string]bool, len(categories))
	for _, c := range categories {
		wantCategory[strings.ToLower(c)] = true
	}
	wantExt := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		wantExt[strings.ToLower(e)] = true
	}

	var out []Entry
	for _, entry := range entries {
		if !wantCategory[strings.ToLower(entry.Category)] {
			continue
		}
		if !wantExt[strings.ToLower(filepath.Ext(entry.Path))] {
			continue
		}
		out = append(out, entry)
	}
	return out
}
