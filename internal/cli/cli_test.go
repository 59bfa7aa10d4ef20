package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ad/personsearch/internal/models"
)

func sampleData() *models.SearchData {
	return &models.SearchData{
		SearchText: "bern",
		Results: []models.SearchHit{
			{Document: &models.PersonCity{ID: 1, Name: "Alice", FamilyName: "Muster", CityCountry: "Bern, Switzerland", Mvp: true}, Score: 2},
			{Document: &models.PersonCity{ID: 2, Name: "Bob"}, Score: 1},
		},
		TotalCount:   30,
		PageCount:    8,
		CurrentPage:  6,
		LeftMostPage: 1,
		PageRange:    7,
		Pages:        []int{1, 2, 3, 4, 5, 6, 7},
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd("test")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "create-index", "delete-index", "status", "load", "query"} {
		assert.Contains(t, names, want)
	}
}

func TestPrintSearchData_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSearchData(&buf, sampleData(), "text"))

	out := buf.String()
	assert.Contains(t, out, `30 results for "bern"`)
	assert.Contains(t, out, "[1] Alice Muster (Bern, Switzerland) MVP")
	assert.Contains(t, out, "[2] Bob\n")
	assert.Contains(t, out, "Page 7 of 8")
	assert.Contains(t, out, "2 3 4 5 6 [7] 8")
	assert.Contains(t, out, "--left-most-page=1")
}

func TestPrintSearchData_Navigation(t *testing.T) {
	data := sampleData()
	data.HasPrevious = true
	data.HasNext = true

	var buf bytes.Buffer
	require.NoError(t, printSearchData(&buf, data, "text"))
	assert.Contains(t, buf.String(), "pages: < 2 3 4 5 6 [7] 8 >")
}

func TestPrintSearchData_NoResults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSearchData(&buf, &models.SearchData{SearchText: "nobody"}, ""))
	assert.Equal(t, "0 results for \"nobody\"\n", buf.String())
}

func TestPrintSearchData_Structured(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSearchData(&buf, sampleData(), "json"))

	var decoded models.SearchData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 8, decoded.PageCount)
	assert.Equal(t, "Alice", decoded.Results[0].Document.Name)

	buf.Reset()
	require.NoError(t, printSearchData(&buf, sampleData(), "yaml"))
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	assert.NotEmpty(t, generic)

	assert.Error(t, printSearchData(&buf, sampleData(), "xml"))
}

func TestCollectDocuments(t *testing.T) {
	log = zerolog.Nop()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`[{"id":1,"name":"Alice"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("- id: 2\n  name: Bob\n"), 0o644))

	single := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(single, []byte(`{"id":3,"name":"Carol"}`), 0o644))

	docs, err := collectDocuments([]string{dir, single})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	_, err = collectDocuments([]string{filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}
