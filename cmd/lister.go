package main

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealroom-cli/internal/vdr"
)

// manifestLister reads the classification collaborator's listing from a
// JSON file: an ordered array of {path, category, label, confidence}.
type manifestLister struct {
	path string
}

func (m manifestLister) List(_ context.Context, _ string) ([]vdr.Entry, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", m.path)
	}
	var entries []vdr.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "decode manifest %s", m.path)
	}
	return entries, nil
}

// fsLister is the fallback when no collaborator manifest is supplied: it
// walks the data-room root and uses the top-level folder name as the
// category. A folder layout like reserve_report/cpr_2024.pdf is the
// convention for manually assembled rooms.
type fsLister struct{}

func (fsLister) List(_ context.Context, root string) ([]vdr.Entry, error) {
	var entries []vdr.Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		category := "financial_model"
		if i := strings.IndexRune(rel, filepath.Separator); i > 0 {
			category = strings.ToLower(rel[:i])
		}
		name := d.Name()
		entries = append(entries, vdr.Entry{
			Path:       rel,
			Category:   category,
			Label:      strings.TrimSuffix(name, filepath.Ext(name)),
			Confidence: 0.5,
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "walk %s", root)
	}
	return entries, nil
}
