package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// LoadResult is everything a load produced: the usable entries plus the
// problems that caused items to be skipped.
type LoadResult struct {
	Files    int
	Entries  []Entry
	Profiles []Profile
	Results  []ValidationResult
	Errors   []*threatmodel.DataLoadError
}

// Loader handles loading knowledge base documents from the filesystem
type Loader struct {
	basePath string
	logger   *zap.Logger
}

// NewLoader creates a new loader with the given base path
func NewLoader(basePath string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{basePath: basePath, logger: logger}
}

// LoadAll loads every .json, .yaml and .yml document under the base path.
// Malformed documents and invalid entries are logged and skipped; only a
// failure to walk the directory is returned as an error.
func (l *Loader) LoadAll() (*LoadResult, error) {
	result := &LoadResult{}
	seen := make(map[string]string)

	var paths []string
	err := filepath.Walk(l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk knowledge directory: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		doc, err := l.LoadFile(path)
		if err != nil {
			l.skip(result, &threatmodel.DataLoadError{Source: path, Err: err})
			continue
		}
		result.Files++
		l.collect(result, path, doc, seen)
	}

	l.logger.Info("knowledge base loaded",
		zap.String("path", l.basePath),
		zap.Int("files", result.Files),
		zap.Int("entries", len(result.Entries)),
		zap.Int("skipped", len(result.Errors)))

	return result, nil
}

// LoadFile loads a single document
func (l *Loader) LoadFile(path string) (Document, error) {
	if err := l.validatePath(path); err != nil {
		return Document{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseDocument(data, filepath.Ext(path))
}

// ParseDocument decodes a knowledge base document. ".json" documents use
// encoding/json; anything else is read as YAML.
func ParseDocument(data []byte, ext string) (Document, error) {
	var doc Document
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Components == nil {
		return Document{}, errors.New("missing top-level \"components\" object")
	}
	return doc, nil
}

func (l *Loader) collect(result *LoadResult, path string, doc Document, seen map[string]string) {
	names := make([]string, 0, len(doc.Components))
	for name := range doc.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		profile := doc.Components[name]
		rawType := profile.Type
		if rawType == "" {
			rawType = name
		}
		ct := threatmodel.NormalizeComponentType(rawType)
		if ct == threatmodel.TypeCustom {
			l.skip(result, &threatmodel.DataLoadError{
				Source: path,
				Entry:  name,
				Err:    fmt.Errorf("unknown component type %q", rawType),
			})
			continue
		}

		result.Profiles = append(result.Profiles, Profile{
			ComponentType:          ct,
			SecurityConsiderations: profile.SecurityConsiderations,
			BestPractices:          profile.BestPractices,
			ComplianceRequirements: profile.ComplianceRequirements,
		})

		for _, raw := range profile.CommonThreats {
			vr := Validate(string(ct), raw)
			vr.Source = path
			result.Results = append(result.Results, vr)

			if !vr.IsValid {
				l.skip(result, &threatmodel.DataLoadError{Source: path, Entry: raw.ID, Err: vr.firstError()})
				continue
			}
			key := TemplateKey(ct, raw.ID)
			if prev, dup := seen[key]; dup {
				l.skip(result, &threatmodel.DataLoadError{
					Source: path,
					Entry:  raw.ID,
					Err:    fmt.Errorf("duplicate template id for %s, first defined in %s", ct, prev),
				})
				continue
			}
			seen[key] = path
			result.Entries = append(result.Entries, toEntry(ct, path, raw))
		}
	}
}

func (l *Loader) skip(result *LoadResult, err *threatmodel.DataLoadError) {
	result.Errors = append(result.Errors, err)
	l.logger.Warn("skipping knowledge base item",
		zap.String("source", err.Source),
		zap.String("entry", err.Entry),
		zap.Error(err.Err))
}

// validatePath ensures the given path is within the loader's basePath
// and prevents directory traversal attacks
func (l *Loader) validatePath(path string) error {
	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cleanBase, err := filepath.Abs(filepath.Clean(l.basePath))
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	// Compare real locations so a symlink cannot point outside the base
	if resolved, err := filepath.EvalSymlinks(cleanPath); err == nil {
		cleanPath = resolved
	}
	if resolved, err := filepath.EvalSymlinks(cleanBase); err == nil {
		cleanBase = resolved
	}

	relPath, err := filepath.Rel(cleanBase, cleanPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}

	// If the relative path starts with "..", it's outside the base path
	if strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s is outside base path %s", path, l.basePath)
	}

	return nil
}

// Open loads the knowledge base at dir and returns a built index
func Open(dir string, logger *zap.Logger) (*Index, *LoadResult, error) {
	result, err := NewLoader(dir, logger).LoadAll()
	if err != nil {
		return nil, nil, err
	}
	idx := NewIndex()
	idx.Build(result.Entries, result.Profiles)
	return idx, result, nil
}
