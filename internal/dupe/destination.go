package dupe

import (
	"fmt"
	"path/filepath"
	"strings"
)

var volumeReplacer = strings.NewReplacer(":", "_", `\`, "_", "/", "_")

// MirrorPath maps an absolute source path under root, keeping its directory
// structure. A volume name becomes the first element below root with
// separators and ':' replaced by '_', so C:\a\b.txt maps to <root>\C_\a\b.txt.
// Paths without a volume (Unix) are joined directly below root.
func MirrorPath(root, src string) (string, error) {
	if !filepath.IsAbs(src) {
		return "", fmt.Errorf("%w: source path is not absolute: %s", ErrInvalidOption, src)
	}

	vol := filepath.VolumeName(src)
	elems := []string{root}
	if vol != "" {
		elems = append(elems, volumeFolder(vol))
	}
	elems = append(elems, src[len(vol):])
	return filepath.Join(elems...), nil
}

func volumeFolder(vol string) string {
	return volumeReplacer.Replace(strings.TrimLeft(vol, `\/`))
}

// SuffixedPath inserts _n between the file's base name and its extension:
// /d/report.txt becomes /d/report_2.txt for n = 2.
func SuffixedPath(path string, n int) string {
	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)
	if ext == name {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
}
