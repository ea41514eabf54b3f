// Package ingest turns files on disk into pipeline documents for the command line
// tools. Text files carry pages separated by form feeds, the way pdftotext emits
// them; PDF and image files are sent as attachments.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/invoice-matcher/constants"
)

// TextExts are read as page text.
var TextExts = map[string]struct{}{"txt": {}, "text": {}}

// File is one discovered document.
type File struct {
	Path    string `json:"path"`
	Ext     string `json:"ext"`
	HashHex string `json:"hash"`
	Size    int64  `json:"size"`
	Dup     bool   `json:"duplicate,omitempty"` // same content as an earlier file
	Err     string `json:"error,omitempty"`
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Deduplicated uint32
	Failed       uint32
}

// Supported reports whether ext (with or without the dot) can be loaded.
func Supported(ext string) bool {
	ext = constants.NormalizeExt(ext)
	if _, ok := TextExts[ext]; ok {
		return true
	}
	return constants.MediaTypeForExt(ext) != ""
}

// ScanDirectory walks root in lexical order and hashes every supported file.
// Unreadable entries are reported in the results and the walk continues.
func ScanDirectory(root string, skipHidden bool, logger *slog.Logger) ([]File, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var files []File
	var stats DirStats
	seen := map[string]bool{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			files = append(files, File{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		f, err := Stat(path)
		if err != nil {
			files = append(files, File{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if seen[f.HashHex] {
			f.Dup = true
			stats.Deduplicated++
		}
		seen[f.HashHex] = true
		files = append(files, f)
		return nil
	})
	if err != nil {
		return files, stats, fmt.Errorf("walk: %w", err)
	}

	files = dropSidecars(files)
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	logger.Info("ingest.scan.ok",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return files, stats, nil
}

// Stat hashes one file.
func Stat(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if !Supported(ext) {
		return File{}, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	fh, err := os.Open(abs)
	if err != nil {
		return File{}, fmt.Errorf("open: %w", err)
	}
	defer fh.Close()

	h := sha256.New()
	n, err := io.Copy(h, fh)
	if err != nil {
		return File{}, fmt.Errorf("hash: %w", err)
	}
	return File{Path: abs, Ext: ext, HashHex: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// dropSidecars removes text files that only carry the page text of a sibling
// attachment; Load picks those up itself.
func dropSidecars(files []File) []File {
	stems := map[string]bool{}
	for _, f := range files {
		if _, ok := TextExts[f.Ext]; !ok && f.Err == "" {
			stems[strings.TrimSuffix(f.Path, filepath.Ext(f.Path))] = true
		}
	}
	out := files[:0]
	for _, f := range files {
		if _, ok := TextExts[f.Ext]; ok && stems[strings.TrimSuffix(f.Path, filepath.Ext(f.Path))] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
