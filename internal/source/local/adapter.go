package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// SourceID identifies the local file fetcher.
const SourceID = "local"

// Adapter reads file:// references and bare paths, for local runs.
type Adapter struct {
	basePath string
}

// NewAdapter creates a new local file adapter.
// Parameters:
//   - basePath: directory relative paths resolve against; empty means the working directory.
//
// Returns:
//   - *Adapter: initialized local fetcher.
func NewAdapter(basePath string) *Adapter {
	return &Adapter{basePath: basePath}
}

func (a *Adapter) GetSourceID() string {
	return SourceID
}

// Supports accepts file:// URLs and references without a scheme.
func (a *Adapter) Supports(ref string) bool {
	if strings.HasPrefix(ref, "file://") {
		return true
	}
	return ref != "" && !strings.Contains(ref, "://")
}

func (a *Adapter) Fetch(_ context.Context, ref string) ([]byte, error) {
	path, err := a.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (a *Adapter) resolve(ref string) (string, error) {
	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("invalid file reference %q: %w", ref, err)
		}
		path = u.Path
	}
	if !filepath.IsAbs(path) && a.basePath != "" {
		path = filepath.Join(a.basePath, path)
	}
	return path, nil
}
