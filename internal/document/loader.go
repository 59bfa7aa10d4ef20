package document

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ad/personsearch/internal/models"
)

// generateDocumentID derives a stable positive ID from the file path and position
func generateDocumentID(filePath string, position int) int64 {
	hash := md5.Sum([]byte(fmt.Sprintf("%s#%d", filePath, position)))
	id := binary.BigEndian.Uint64(hash[:8])
	return int64(id&0x7FFFFFFFFFFFFFFF) | 1
}

// isSupported reports whether the file extension is a seed format
func isSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Parse decodes person/city documents from data. format is a file extension
// (".json", ".yaml" or ".yml"). JSON accepts a single object or an array.
func Parse(data []byte, format string) ([]*models.PersonCity, error) {
	var docs []*models.PersonCity

	switch strings.ToLower(format) {
	case ".json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var doc models.PersonCity
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return []*models.PersonCity{&doc}, nil
		}
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}

	return docs, nil
}

// LoadFile reads and validates the documents in a single seed file.
// Documents without an ID get one derived from the path.
func LoadFile(path string) ([]*models.PersonCity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	docs, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := make([]*models.PersonCity, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		if doc.ID == 0 {
			doc.ID = generateDocumentID(path, i)
		}
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed for %s at position %d: %w", path, i, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// LoadDirectory walks dir for seed files. Files that fail to parse or
// validate are logged and skipped.
func LoadDirectory(dir string, log zerolog.Logger) ([]*models.PersonCity, error) {
	var documents []*models.PersonCity
	files := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSupported(d.Name()) {
			return nil
		}

		docs, loadErr := LoadFile(path)
		if loadErr != nil {
			log.Warn().Err(loadErr).Str("file", path).Msg("skipping seed file")
			return nil
		}

		files++
		documents = append(documents, docs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	log.Info().Str("dir", dir).Int("files", files).Int("documents", len(documents)).Msg("seed documents loaded")
	return documents, nil
}
