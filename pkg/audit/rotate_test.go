// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readLines returns the lines of path.N ... path.1, path in write order.
func readLines(t *testing.T, path string, backups int) []string {
	t.Helper()

	var files []string
	for i := backups; i >= 1; i-- {
		files = append(files, fmt.Sprintf("%s.%d", path, i))
	}
	files = append(files, path)

	var lines []string
	for _, name := range files {
		f, err := os.Open(name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		f.Close()
	}
	return lines
}

func TestRotatingFile_NoLossNoDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	// 20-byte records, 100-byte threshold: 5 records per file.
	rf, err := OpenRotatingFile(path, 100, 3)
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}
	defer rf.Close()

	const n = 18 // fits in active + 3 backups
	for i := 0; i < n; i++ {
		line := fmt.Sprintf("record-%012d\n", i)
		if len(line) != 20 {
			t.Fatalf("test record has %d bytes", len(line))
		}
		if _, err := rf.Write([]byte(line)); err != nil {
			t.Fatalf("Write(%d) error = %v", i, err)
		}
	}

	lines := readLines(t, path, 3)
	if len(lines) != n {
		t.Fatalf("expected %d records across files, got %d", n, len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprintf("record-%012d", i); line != want {
			t.Errorf("line %d = %q, want %q", i, line, want)
		}
	}

	// Records 0-4 in .3, 5-9 in .2, 10-14 in .1, 15-17 active.
	split := map[string]int{path + ".3": 5, path + ".2": 5, path + ".1": 5, path: 3}
	for name, want := range split {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if got := strings.Count(string(data), "\n"); got != want {
			t.Errorf("%s holds %d records, want %d", filepath.Base(name), got, want)
		}
	}
}

func TestRotatingFile_RetentionBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	rf, err := OpenRotatingFile(path, 64, 2)
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}
	defer rf.Close()

	for i := 0; i < 200; i++ {
		if _, err := rf.Write([]byte(strings.Repeat("x", 31) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		info, err := os.Stat(name)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
		if info.Size() > 64 {
			t.Errorf("%s has %d bytes, threshold is 64", name, info.Size())
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no third backup, stat error = %v", err)
	}
}

func TestRotatingFile_OversizedRecordIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	rf, err := OpenRotatingFile(path, 10, 1)
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}
	defer rf.Close()

	big := strings.Repeat("y", 50) + "\n"
	if _, err := rf.Write([]byte(big)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := rf.Write([]byte("z\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := readLines(t, path, 1)
	if len(lines) != 2 || lines[0] != strings.TrimSuffix(big, "\n") || lines[1] != "z" {
		t.Errorf("unexpected contents %q", lines)
	}
}

func TestRotatingFile_ZeroBackupsNeverRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	rf, err := OpenRotatingFile(path, 8, 0)
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}
	defer rf.Close()

	for i := 0; i < 10; i++ {
		rf.Write([]byte("abcdefg\n")) //nolint:errcheck
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Errorf("expected no backup with zero retention, stat error = %v", err)
	}
	if got := len(readLines(t, path, 0)); got != 10 {
		t.Errorf("expected 10 records, got %d", got)
	}
}

func TestRotatingFile_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rf, err := OpenRotatingFile(path, 1024, 1)
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}
	rf.Write([]byte("new\n")) //nolint:errcheck
	rf.Close()

	lines := readLines(t, path, 1)
	if len(lines) != 2 || lines[0] != "old" || lines[1] != "new" {
		t.Errorf("unexpected contents %q", lines)
	}
}

func TestOpenRotatingFile_InvalidPolicy(t *testing.T) {
	if _, err := OpenRotatingFile(filepath.Join(t.TempDir(), "a.log"), -1, 1); err == nil {
		t.Error("expected error for negative threshold")
	}
}
