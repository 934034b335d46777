package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cmrcore/internal/core"
	"cmrcore/internal/terminology"
	"cmrcore/pkg/domain"
)

// seed writes one approved term into a fresh sqlite database and returns a
// config file pointing at it.
func seed(t *testing.T) (configPath, uid string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cmr.db")
	ctx := context.Background()
	svc, err := core.OpenService(ctx, core.Config{Storage: core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: dbPath}}, terminology.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := svc.RegisterLibrary(ctx, domain.LibraryPolicy{Name: "Sponsor", Editable: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	catalog := terminology.NewCatalog(svc)
	agg, err := catalog.Terms.Create(ctx, core.CreateRequest[terminology.Term]{
		Value:    terminology.Term{SubmissionValue: "Y", PreferredTerm: "Yes"},
		Library:  "Sponsor",
		AuthorID: "alice",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := catalog.Terms.Approve(ctx, agg.UID(), "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := svc.Store().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	configPath = filepath.Join(dir, "cmr.yaml")
	body := "storage:\n  driver: sqlite\n  sqlite_path: " + dbPath +
		"\nblob:\n  driver: fs\n  fs_root: " + filepath.Join(dir, "blobs") +
		"\nlog:\n  level: error\n"
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, agg.UID()
}

func TestCLIPrintsAndArchivesHistory(t *testing.T) {
	cfg, uid := seed(t)
	metricsPath := filepath.Join(t.TempDir(), "cmr.prom")
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), []string{"-config", cfg, "-uid", uid, "-archive", "-metrics-file", metricsPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{uid + ": 1.0 Final", "0.1", "Approved version", "archived history/CTTerm/" + uid + "/2.json"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(metricsPath); err != nil {
		t.Fatalf("metrics file: %v", err)
	}

	// Archiving the same revision again reuses the stored object.
	stdout.Reset()
	if code := cli(context.Background(), []string{"-config", cfg, "-uid", uid, "-archive"}, &stdout, &stderr); code != 0 {
		t.Fatalf("second run exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "/2.json") {
		t.Fatalf("unexpected second run output %s", stdout.String())
	}
}

func TestCLIJSONFormat(t *testing.T) {
	cfg, uid := seed(t)
	var stdout, stderr bytes.Buffer
	if code := cli(context.Background(), []string{"-config", cfg, "-uid", uid, "-format", "json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var hist []core.HistoryEntry[terminology.Term]
	if err := json.Unmarshal(stdout.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist) != 2 || hist[0].Metadata.Version.String() != "1.0" || hist[1].Value.SubmissionValue != "Y" {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestCLIErrors(t *testing.T) {
	cfg, _ := seed(t)
	cases := []struct {
		args []string
		code int
	}{
		{[]string{"-config", cfg}, 2},
		{[]string{"-config", cfg, "-uid", "X", "-kind", "Thing"}, 2},
		{[]string{"-config", cfg, "-uid", "X", "-format", "xml"}, 2},
		{[]string{"-bogus"}, 2},
		{[]string{"-config", cfg, "-uid", "CTTerm_000404"}, 1},
		{[]string{"-config", filepath.Join(t.TempDir(), "missing.yaml"), "-uid", "X"}, 1},
	}
	for _, tc := range cases {
		var stdout, stderr bytes.Buffer
		if got := cli(context.Background(), tc.args, &stdout, &stderr); got != tc.code {
			t.Fatalf("args %v: exit %d, want %d (%s)", tc.args, got, tc.code, stderr.String())
		}
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cmr-history"}
	main()
	if len(codes) != 1 || codes[0] != 2 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}
