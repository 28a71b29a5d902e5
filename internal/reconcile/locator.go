package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/manifest"
)

// Locator finds the candidate files a record's jar path may refer to.
type Locator interface {
	LocateAll(relativePath, unitID string) []string
}

// RootLocator resolves relative jar paths against installation roots,
// tried in order.
type RootLocator struct {
	Roots []string
}

// LocateAll returns the existing files named by relativePath under each
// root. An absolute path is returned as is when it exists.
func (l RootLocator) LocateAll(relativePath, unitID string) []string {
	if filepath.IsAbs(relativePath) {
		if isFile(relativePath) {
			return []string{relativePath}
		}
		return nil
	}
	var out []string
	for _, root := range l.Roots {
		p := filepath.Join(root, filepath.FromSlash(relativePath))
		if isFile(p) {
			out = append(out, p)
		}
	}
	return out
}

// Relative returns path relative to the first root containing it, in slash
// form, or path itself when no root does.
func (l RootLocator) Relative(path string) string {
	for _, root := range l.Roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return path
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// locate picks the jar for rec among the locator's candidates and reads its
// descriptor. Candidates whose descriptor names another unit are skipped.
// Duplicates resolve to the highest major release, then the highest
// specification version, unless firstWins keeps the first candidate.
func locate(l Locator, rec *Record, firstWins bool) (string, *manifest.Descriptor, error) {
	var (
		bestPath string
		best     *manifest.Descriptor
		lastErr  error
	)
	for _, p := range l.LocateAll(rec.Jar, rec.Name) {
		d, err := manifest.Load(p)
		if err != nil {
			lastErr = err
			continue
		}
		if d.ID != rec.Name {
			lastErr = fmt.Errorf("%s declares unit %s", p, d.ID)
			continue
		}
		if best == nil || newer(d, best) {
			bestPath, best = p, d
		}
		if firstWins {
			break
		}
	}

	if best == nil {
		if lastErr != nil {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrMissingJar, rec.Jar, lastErr)
		}
		return "", nil, fmt.Errorf("%w: %s", ErrMissingJar, rec.Jar)
	}
	return bestPath, best, nil
}

func newer(a, b *manifest.Descriptor) bool {
	if a.MajorRelease() != b.MajorRelease() {
		return a.MajorRelease() > b.MajorRelease()
	}
	switch {
	case a.Spec == "":
		return false
	case b.Spec == "":
		return true
	}
	cmp, err := dependency.CompareSpecVersions(a.Spec, b.Spec)
	return err == nil && cmp > 0
}
