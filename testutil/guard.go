// Package testutil provides helpers for enforcing import boundaries between
// the module's packages.
package testutil

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "cmrcore"

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, reason, viols)
}

// AssertNoImportsInTree walks every .go file under root, test files
// included, and fails if any import satisfies forbidden. Directories named
// in allowed are skipped, as are ones starting with "_" or ".".
func AssertNoImportsInTree(t testing.TB, root string, allowed []string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := treeImportViolations(root, allowed, forbidden)
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	failIfViolations(t, reason, viols)
}

// InternalImport matches imports of any internal package.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasPrefix(path, ModulePath+"/internal")
}

// UnderPrefix returns a predicate matching prefix and its subpackages.
func UnderPrefix(prefix string) func(string) bool {
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		found, err := fileViolations(fset, filepath.Join(dir, name), forbidden)
		if err != nil {
			return nil, err
		}
		for _, ip := range found {
			viols = append(viols, ip+" (in "+name+")")
		}
	}
	return viols, nil
}

func treeImportViolations(root string, allowed []string, forbidden func(string) bool) ([]string, error) {
	skip := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		skip[filepath.Clean(a)] = true
	}
	fset := token.NewFileSet()
	var viols []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || skip[filepath.Clean(path)]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		found, err := fileViolations(fset, path, forbidden)
		if err != nil {
			return err
		}
		for _, ip := range found {
			viols = append(viols, path+": "+ip)
		}
		return nil
	})
	sort.Strings(viols)
	return viols, err
}

func fileViolations(fset *token.FileSet, path string, forbidden func(string) bool) ([]string, error) {
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, imp := range file.Imports {
		ip, _ := strconv.Unquote(imp.Path.Value)
		if forbidden(ip) {
			out = append(out, ip)
		}
	}
	return out, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
