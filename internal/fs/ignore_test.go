package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	m := NewIgnoreMatcher([]string{"", "  ", "# caches", "*.part", "Library/Caches", "node_modules/"})

	want := []ignorePattern{
		{pattern: "*.part"},
		{pattern: "Library/Caches", matchPath: true},
		{pattern: "node_modules"},
	}
	if len(m.patterns) != len(want) {
		t.Fatalf("patterns = %+v, want %+v", m.patterns, want)
	}
	for i, p := range want {
		if m.patterns[i] != p {
			t.Errorf("patterns[%d] = %+v, want %+v", i, m.patterns[i], p)
		}
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	thumbs := []string{"Thumbs.db", ".DS_Store", "*.part"}
	library := []string{"Library/Caches", "exports/*.jpg"}

	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{"OS metadata in the scan root", thumbs, "Thumbs.db", true},
		{"OS metadata deep in a tree", thumbs, filepath.Join("2019", "trip", ".DS_Store"), true},
		{"partial download", thumbs, filepath.Join("incoming", "movie.mkv.part"), true},
		{"ordinary photo", thumbs, filepath.Join("2019", "IMG_0001.jpg"), false},
		{"path pattern exact", library, filepath.Join("Library", "Caches"), true},
		{"path pattern anchored at the root", library, filepath.Join("home", "Library", "Caches"), false},
		{"path pattern glob", library, filepath.Join("exports", "a.jpg"), true},
		{"path glob stays in one directory", library, filepath.Join("exports", "old", "a.jpg"), false},
		{"single character wildcard", []string{"IMG_????.heic"}, "IMG_0042.heic", true},
		{"single character wildcard too long", []string{"IMG_????.heic"}, "IMG_00042.heic", false},
		{"character class", []string{"*.[jJ][pP][gG]"}, "Scan.JPG", true},
		{"ignore file itself", []string{IgnoreFileName}, IgnoreFileName, true},
		{"no patterns", nil, "a.txt", false},
		{"scan root", thumbs, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.patterns).Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, ".dupeignore")
		content := "Thumbs.db\n# editor backups\n\n*~\nLibrary/Caches\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		// Raw lines come back as written; NewIgnoreMatcher drops blanks and comments.
		if len(patterns) != 5 {
			t.Fatalf("len(ParseIgnoreFile()) = %d, want 5", len(patterns))
		}
		if m := NewIgnoreMatcher(patterns); len(m.patterns) != 3 {
			t.Errorf("len(patterns) = %d, want 3", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile("/nonexistent/.dupeignore")
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("ParseIgnoreFile() = %v, want nil", patterns)
		}
	})
}

func TestIgnoreMatcher_DirectoryPatterns(t *testing.T) {
	m := NewIgnoreMatcher([]string{"node_modules/", "build/cache"})

	if !m.Match("node_modules") {
		t.Error("Match(node_modules) = false, want true for trailing-slash pattern")
	}
	if !m.Match(filepath.Join("build", "cache")) {
		t.Error("Match(build/cache) = false, want true")
	}
}

func TestLoadIgnoreMatcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("*.bak\n"), 0644); err != nil {
		t.Fatalf("writing ignore file: %v", err)
	}

	m, err := LoadIgnoreMatcher(dir, []string{"*.tmp"})
	if err != nil {
		t.Fatalf("LoadIgnoreMatcher() error = %v", err)
	}

	for path, want := range map[string]bool{
		"a.bak":        true,
		"a.tmp":        true,
		IgnoreFileName: true,
		"a.txt":        false,
	} {
		if got := m.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}
