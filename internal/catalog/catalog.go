package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"tycoon/internal/achievements"
	"tycoon/internal/events"
	"tycoon/internal/market"

	"gopkg.in/yaml.v3"
)

const (
	Events       = "events"
	Instruments  = "instruments"
	Achievements = "achievements"
)

var ErrNotFound = errors.New("catalog resource not found")

//go:embed data/*.yaml
var embedded embed.FS

// Source returns the raw bytes of a logical resource, or ErrNotFound.
type Source interface {
	Open(name string) ([]byte, error)
}

type fsSource struct {
	fsys fs.FS
	exts []string
}

func (s fsSource) Open(name string) ([]byte, error) {
	for _, ext := range s.exts {
		b, err := fs.ReadFile(s.fsys, name+ext)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func Embedded() Source {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return fsSource{fsys: sub, exts: []string{".yaml"}}
}

// Dir reads <name>.yaml, <name>.yml or <name>.json from path. JSON is valid
// YAML, so all three decode the same way.
func Dir(path string) Source {
	return fsSource{fsys: os.DirFS(filepath.Clean(path)), exts: []string{".yaml", ".yml", ".json"}}
}

type layered []Source

func (l layered) Open(name string) ([]byte, error) {
	for _, s := range l {
		if s == nil {
			continue
		}
		b, err := s.Open(name)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Layered consults sources in order and returns the first hit.
func Layered(sources ...Source) Source {
	return layered(sources)
}

// Default layers an optional override directory over the embedded data.
func Default(dir string) Source {
	if dir == "" {
		return Embedded()
	}
	return Layered(Dir(dir), Embedded())
}

type Catalogue struct {
	Events       []events.Template         `json:"events"`
	Instruments  []market.Instrument       `json:"instruments"`
	Achievements []achievements.Definition `json:"achievements"`
}

// Load reads all three catalogues. A missing or unreadable resource is logged
// and replaced with an empty list.
func Load(src Source, logger *slog.Logger) Catalogue {
	if logger == nil {
		logger = slog.Default()
	}
	return Catalogue{
		Events:       decodeList[events.Template](src, Events, logger),
		Instruments:  decodeList[market.Instrument](src, Instruments, logger),
		Achievements: decodeList[achievements.Definition](src, Achievements, logger),
	}
}

func Decode[T any](src Source, name string) ([]T, error) {
	b, err := src.Open(name)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

func decodeList[T any](src Source, name string, logger *slog.Logger) []T {
	out, err := Decode[T](src, name)
	if err != nil {
		logger.Error("catalogue unavailable, continuing with an empty set", "resource", name, "err", err)
		return nil
	}
	logger.Debug("catalogue loaded", "resource", name, "count", len(out))
	return out
}
