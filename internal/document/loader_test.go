package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  string
		want    int
		wantErr bool
	}{
		{name: "json array", data: `[{"id":1,"name":"Ada"},{"id":2,"name":"Alan"}]`, format: ".json", want: 2},
		{name: "json object", data: ` {"id":1,"name":"Ada","cityCountry":"London, UK"}`, format: ".json", want: 1},
		{name: "yaml list", data: "- id: 1\n  name: Ada\n  mvp: true\n", format: ".yml", want: 1},
		{name: "empty yaml", data: "", format: ".yaml", want: 0},
		{name: "broken json", data: `[{"id":`, format: ".json", wantErr: true},
		{name: "unknown format", data: "id,name", format: ".csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := Parse([]byte(tt.data), tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, docs, tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "people.yaml", `
- id: 10
  name: Ada
  familyName: Lovelace
  cityCountry: London, UK
  github: https://github.com/ada
  mvp: true
- name: Alan
  cityCountry: Manchester, UK
`)

	docs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.EqualValues(t, 10, docs[0].ID)
	assert.Equal(t, "Lovelace", docs[0].FamilyName)
	assert.Equal(t, "https://github.com/ada", docs[0].Github)
	assert.True(t, docs[0].Mvp)

	assert.Positive(t, docs[1].ID, "missing ids are generated")
	again, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, docs[1].ID, again[1].ID, "generated ids are stable")
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `[{"id":1,"name":""}]`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 0")

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"id":1,"name":"Ada"}]`)
	writeFile(t, dir, "nested/b.yml", "- id: 2\n  name: Alan\n")
	writeFile(t, dir, "broken.json", `{`)
	writeFile(t, dir, "notes.md", "# not a seed file")

	docs, err := LoadDirectory(dir, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	names := []string{docs[0].Name, docs[1].Name}
	assert.ElementsMatch(t, []string{"Ada", "Alan"}, names)
}

func TestLoadDirectory_Missing(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	assert.Error(t, err)
}

func TestGenerateDocumentID(t *testing.T) {
	a := generateDocumentID("data/a.json", 0)
	b := generateDocumentID("data/a.json", 1)
	assert.NotEqual(t, a, b)
	assert.Positive(t, a)
	assert.Equal(t, a, generateDocumentID("data/a.json", 0))
}
