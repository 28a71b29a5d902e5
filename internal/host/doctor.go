package host

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentx-labs/unitcore/internal/config"
	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/platform"
	"github.com/agentx-labs/unitcore/internal/reconcile"
	"github.com/agentx-labs/unitcore/internal/transform"
)

// DirPermNormal is the mode the doctor creates folders with.
const DirPermNormal = platform.DirPerm

// Report counts the problems a Check found.
type Report struct {
	Failures int
	Warnings int
}

// OK reports whether nothing failed.
func (r Report) OK() bool { return r.Failures == 0 }

// Check validates the layout s describes without booting it: the status
// folder, every record and its jar, and the rule sources. When fix is true
// it creates missing folders and repairs permissions.
func Check(w io.Writer, s *config.Settings, fix bool) (Report, error) {
	var rep Report

	fmt.Fprintln(w, "Status folder:")
	if !checkDir(w, &rep, s.StatusDir, fix) {
		return rep, nil
	}
	store, err := reconcile.NewStore(s.StatusDir, nil)
	if err != nil {
		return rep, err
	}
	paths, err := store.List()
	if err != nil {
		return rep, err
	}
	loc := reconcile.RootLocator{Roots: s.InstallRoots}
	for _, p := range paths {
		checkRecord(w, &rep, store, loc, p)
	}
	if len(paths) == 0 {
		fmt.Fprintln(w, "  [ OK ] no status records")
	}

	fmt.Fprintln(w, "Rules:")
	for _, p := range s.Rules {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(w, "  [MISS] %s does not exist\n", p)
			continue
		}
		if _, err := transform.Load(nil, p); err != nil {
			rep.Failures++
			fmt.Fprintf(w, "  [FAIL] %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  [ OK ] %s\n", p)
	}

	if s.CacheDir != "" {
		fmt.Fprintln(w, "Cache:")
		checkDir(w, &rep, s.CacheDir, fix)
	}
	return rep, nil
}

func checkRecord(w io.Writer, rep *Report, store *reconcile.Store, loc reconcile.RootLocator, path string) {
	rec, err := store.Read(path)
	if err != nil {
		rep.Failures++
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return
	}
	if filepath.Base(path) != reconcile.FileName(rec.Name) {
		rep.Failures++
		fmt.Fprintf(w, "  [FAIL] %s names unit %s\n", path, rec.Name)
		return
	}
	found := loc.LocateAll(rec.Jar, rec.Name)
	if len(found) == 0 {
		rep.Warnings++
		fmt.Fprintf(w, "  [WARN] %s: jar %s not found under %v\n", rec.Name, rec.Jar, loc.Roots)
		return
	}
	d, err := manifest.Load(found[0])
	switch {
	case err != nil:
		rep.Failures++
		fmt.Fprintf(w, "  [FAIL] %s: %v\n", rec.Name, err)
	case d.ID != rec.Name:
		rep.Failures++
		fmt.Fprintf(w, "  [FAIL] %s: %s declares unit %s\n", rec.Name, found[0], d.ID)
	default:
		fmt.Fprintf(w, "  [ OK ] %s (%s)\n", rec.Name, found[0])
	}
}

// checkDir reports whether path is a usable directory, creating it when
// fix is set.
func checkDir(w io.Writer, rep *Report, path string, fix bool) bool {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "  [MISS] %s does not exist\n", path)
		if !fix {
			rep.Warnings++
			return false
		}
		if mkErr := os.MkdirAll(path, DirPermNormal); mkErr != nil {
			rep.Failures++
			fmt.Fprintf(w, "  [FAIL] Could not create %s: %v\n", path, mkErr)
			return false
		}
		fmt.Fprintf(w, "  [FIX ] Created %s\n", path)
		return true
	}
	if err != nil {
		rep.Failures++
		fmt.Fprintf(w, "  [FAIL] %s: %v\n", path, err)
		return false
	}
	if !info.IsDir() {
		rep.Failures++
		fmt.Fprintf(w, "  [FAIL] %s exists but is not a directory\n", path)
		return false
	}

	// The reconciler needs to create and rename files in the folder.
	if perm := info.Mode().Perm(); !platform.OwnerWritable(perm) {
		rep.Warnings++
		fmt.Fprintf(w, "  [WARN] %s has permissions %o (expected %o)\n", path, perm, DirPermNormal)
		if fix {
			if chErr := platform.Chmod(path, DirPermNormal); chErr != nil {
				rep.Failures++
				fmt.Fprintf(w, "  [FAIL] Could not fix permissions on %s: %v\n", path, chErr)
				return false
			}
			fmt.Fprintf(w, "  [FIX ] Fixed permissions on %s to %o\n", path, DirPermNormal)
		}
		return true
	}
	fmt.Fprintf(w, "  [ OK ] %s exists\n", path)
	return true
}
