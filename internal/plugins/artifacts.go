package plugins

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// installArtifactSet copies each named folder under srcRoot/kind/{name}
// (or, when kind == "skills" and the folder lives directly under srcRoot,
// srcRoot/{name}) into destRoot/{name}, returning the names that actually
// copied. A missing source folder is skipped, without logging, rather than
// failing the whole install, matching the manifest/plugin-install
// reconcile-then-skip style used elsewhere for declared-item loops.
func installArtifactSet(srcRoot, kind string, names []string, destRoot string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create content root %s: %w", destRoot, err)
	}
	var installed []string
	for _, name := range names {
		src := filepath.Join(srcRoot, kind, name)
		if _, err := os.Stat(src); err != nil {
			src = filepath.Join(srcRoot, name)
			if _, err := os.Stat(src); err != nil {
				continue
			}
		}
		dest := filepath.Join(destRoot, name)
		if err := copyTree(src, dest); err != nil {
			return nil, fmt.Errorf("copy %s: %w", name, err)
		}
		installed = append(installed, name)
	}
	return installed, nil
}

func removeArtifactSet(names []string, root string, log *slog.Logger) {
	for _, name := range names {
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			log.Warn("remove plugin artifact failed", "root", root, "name", name, "error", err)
		}
	}
}

func copyTree(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dest, info.Mode())
	}
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
