package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsLister_FolderNamesBecomeCategories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reserve_report"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "reserve_report", "cpr_2024.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "model.xlsx"), []byte("x"), 0o644))

	entries, err := fsLister{}.List(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPath := map[string]string{}
	labels := map[string]string{}
	for _, e := range entries {
		byPath[e.Path] = e.Category
		labels[e.Path] = e.Label
	}
	assert.Equal(t, "financial_model", byPath["model.xlsx"], "root-level files default to financial_model")
	assert.Equal(t, "reserve_report", byPath[filepath.Join("reserve_report", "cpr_2024.pdf")])
	assert.Equal(t, "cpr_2024", labels[filepath.Join("reserve_report", "cpr_2024.pdf")])
}

func TestFsLister_MissingRoot(t *testing.T) {
	_, err := fsLister{}.List(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestManifestLister_DecodesListing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	manifest := `[
		{"path": "model.xlsx", "category": "financial_model", "label": "Field A", "confidence": 0.92},
		{"path": "prod/jan.csv", "category": "production_report", "confidence": 0.81}
	]`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	entries, err := manifestLister{path: path}.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "model.xlsx", entries[0].Path)
	assert.Equal(t, "Field A", entries[0].Label)
	assert.InDelta(t, 0.81, entries[1].Confidence, 1e-9)
}

func TestManifestLister_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := manifestLister{path: path}.List(context.Background(), "")
	assert.Error(t, err)
}
