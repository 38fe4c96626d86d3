package dupe_test

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"dupe-go/internal/dupe"
	"dupe-go/internal/hashing"
	"dupe-go/internal/testutil"
)

var errSharing = errors.New("file in use by another process")

func (h *harness) resolvePath(t *testing.T, path string) *dupe.Path {
	t.Helper()
	p, err := h.fs.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(%s) error = %v", path, err)
	}
	return p
}

func (h *harness) countSleeps() *int {
	n := 0
	h.svc.SetSleep(func(time.Duration) { n++ })
	return &n
}

func TestScanPath_Directory(t *testing.T) {
	h := newHarness(t)
	h.fs.AddFile("/data/a.txt", []byte("alpha"))
	h.fs.AddFile("/data/b.txt", []byte("alpha"))
	h.fs.AddFile("/data/sub/c.txt", []byte("gamma"))
	opts := dupe.ScanOptions{Algorithm: hashing.SHA256}

	result, err := h.svc.ScanPath(h.resolvePath(t, "/data"), opts)
	if err != nil {
		t.Fatalf("ScanPath() error = %v", err)
	}
	if result.Hashed != 2 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("non-recursive ScanPath() = %+v, want 2 hashed", result)
	}
	if h.inLedger(t, "/data/sub/c.txt") {
		t.Error("non-recursive scan descended into sub")
	}

	opts.Recursive = true
	result, err = h.svc.ScanPath(h.resolvePath(t, "/data"), opts)
	if err != nil {
		t.Fatalf("ScanPath() error = %v", err)
	}
	if result.Hashed != 1 || result.Skipped != 2 {
		t.Errorf("recursive ScanPath() = %+v, want 1 hashed, 2 skipped", result)
	}
	if h.fs.Opens["/data/a.txt"] != 1 {
		t.Errorf("Opens[/data/a.txt] = %d, want 1; known paths are not reread", h.fs.Opens["/data/a.txt"])
	}

	groups, err := h.svc.ListDuplicates(-1, nil, true, false)
	if err != nil {
		t.Fatalf("ListDuplicates() error = %v", err)
	}
	want := testutil.HashHex(hashing.SHA256, []byte("alpha"))
	if len(groups) != 1 || groups[0].Hash != want || groups[0].MaxFileSize != 5 {
		t.Errorf("ListDuplicates() = %+v, want one alpha group", groups)
	}
}

func TestScanPath_SingleFile(t *testing.T) {
	h := newHarness(t)
	h.fs.AddFile("/data/a.txt", []byte("alpha"))

	result, err := h.svc.ScanPath(h.resolvePath(t, "/data/a.txt"), dupe.ScanOptions{Algorithm: "md5"})
	if err != nil {
		t.Fatalf("ScanPath() error = %v", err)
	}
	if result.Hashed != 1 {
		t.Errorf("Hashed = %d, want 1", result.Hashed)
	}

	groups, _ := h.svc.ListDuplicates(-1, []string{"Algorithm = 'md5'"}, true, true)
	if len(groups) != 1 || groups[0].Algorithm != hashing.MD5 {
		t.Errorf("ListDuplicates() = %+v, want one MD5 group", groups)
	}
}

func TestScanPath_Retries(t *testing.T) {
	const path = "/data/a.txt"

	tests := []struct {
		name       string
		err        error
		times      int
		retries    int
		wantOpens  int
		wantSleeps int
		wantFailed bool
	}{
		{name: "transient error recovers", err: errSharing, times: 2, retries: 2, wantOpens: 3, wantSleeps: 2},
		{name: "retries exhausted", err: errSharing, times: -1, retries: 2, wantOpens: 3, wantSleeps: 2, wantFailed: true},
		{name: "permission error is not retried", err: fs.ErrPermission, times: -1, retries: 3, wantOpens: 1, wantFailed: true},
		{name: "no retries configured", err: errSharing, times: 1, retries: 0, wantOpens: 1, wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			sleeps := h.countSleeps()
			h.fs.AddFile(path, []byte("alpha"))
			h.fs.FailOpen(path, tt.err, tt.times)

			result, err := h.svc.ScanPath(h.resolvePath(t, path), dupe.ScanOptions{
				Algorithm:  hashing.SHA1,
				Retries:    tt.retries,
				RetryDelay: time.Millisecond,
			})
			if err != nil {
				t.Fatalf("ScanPath() error = %v", err)
			}

			if got := h.fs.Opens[path]; got != tt.wantOpens {
				t.Errorf("Opens = %d, want %d", got, tt.wantOpens)
			}
			if *sleeps != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", *sleeps, tt.wantSleeps)
			}

			failed, err := h.svc.FailedPaths()
			if err != nil {
				t.Fatalf("FailedPaths() error = %v", err)
			}
			if tt.wantFailed {
				if result.Failed != 1 || len(failed) != 1 || failed[0] != path {
					t.Errorf("result = %+v, FailedPaths() = %v, want one failure", result, failed)
				}
			} else if result.Hashed != 1 || len(failed) != 0 {
				t.Errorf("result = %+v, FailedPaths() = %v, want one success", result, failed)
			}
		})
	}
}

func TestScanPath_Algorithms(t *testing.T) {
	tests := []struct {
		algorithm string
		want      error
	}{
		{hashing.MACTripleDES, hashing.ErrNotComputable},
		{"CRC32", hashing.ErrUnsupportedAlgorithm},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			h := newHarness(t)
			h.fs.AddFile("/data/a.txt", []byte("alpha"))

			_, err := h.svc.ScanPath(h.resolvePath(t, "/data"), dupe.ScanOptions{Algorithm: tt.algorithm})
			if !errors.Is(err, tt.want) {
				t.Errorf("ScanPath() error = %v, want %v", err, tt.want)
			}
			if h.fs.Opens["/data/a.txt"] != 0 {
				t.Error("file was opened with an unusable algorithm")
			}
		})
	}
}

func TestRescanFailed(t *testing.T) {
	h := newHarness(t)
	h.countSleeps()
	h.fs.AddFile("/data/a.txt", []byte("alpha"))
	h.fs.AddFile("/data/b.txt", []byte("alpha"))
	h.fs.AddFile("/data/c.txt", []byte("gamma"))
	h.fs.FailOpen("/data/b.txt", errSharing, -1)
	h.fs.FailOpen("/data/c.txt", errSharing, -1)
	opts := dupe.ScanOptions{Algorithm: hashing.SHA256, Retries: 1}

	if _, err := h.svc.ScanPath(h.resolvePath(t, "/data"), opts); err != nil {
		t.Fatalf("ScanPath() error = %v", err)
	}

	h.fs.FailOpen("/data/b.txt", nil, 0)
	result, err := h.svc.RescanFailed(opts)
	if err != nil {
		t.Fatalf("RescanFailed() error = %v", err)
	}
	if result.Corrected != 1 || result.StillFailing != 1 {
		t.Errorf("RescanFailed() = %+v, want 1 corrected, 1 still failing", result)
	}

	failed, _ := h.svc.FailedPaths()
	if len(failed) != 1 || failed[0] != "/data/c.txt" {
		t.Errorf("FailedPaths() = %v, want [/data/c.txt]", failed)
	}

	groups, _ := h.svc.ListDuplicates(-1, nil, true, false)
	if len(groups) != 1 || groups[0].FileCount != 2 {
		t.Errorf("ListDuplicates() = %+v, want the corrected file grouped with its twin", groups)
	}
}

func TestScanPath_ReportsProgress(t *testing.T) {
	h := newHarness(t)
	rep := &testutil.RecordingReporter{}
	h.svc.SetReporter(rep)
	h.fs.AddFile("/data/a.txt", []byte("a"))
	h.fs.AddFile("/data/b.txt", []byte("b"))

	if _, err := h.svc.ScanPath(h.resolvePath(t, "/data"), dupe.ScanOptions{Algorithm: hashing.SHA256}); err != nil {
		t.Fatalf("ScanPath() error = %v", err)
	}
	if len(rep.Started) != 1 || rep.Started[0] != "hashing" || rep.Finished != 1 {
		t.Errorf("Started, Finished = %v, %d", rep.Started, rep.Finished)
	}
	if len(rep.Advanced) != 2 {
		t.Errorf("Advanced = %v, want two files", rep.Advanced)
	}
}
