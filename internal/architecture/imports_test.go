package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// layers lists, per directory prefix, the module packages it must not import.
// Lower layers never reach up: domain < platform < store < services < http < app.
var layers = []struct {
	prefix     string
	disallowed []string
}{
	{"internal/domain/", []string{"internal/platform/", "internal/store", "internal/journal", "internal/services", "internal/http/", "internal/app"}},
	{"internal/platform/", []string{"internal/store", "internal/journal", "internal/jobs/", "internal/services", "internal/http/", "internal/app"}},
	{"internal/pkg/", []string{"internal/store", "internal/services", "internal/http/", "internal/app"}},
	{"internal/store/", []string{"internal/journal", "internal/services", "internal/http/", "internal/app"}},
	{"internal/journal/", []string{"internal/services", "internal/http/", "internal/app"}},
	{"internal/jobs/", []string{"internal/services", "internal/http/", "internal/app"}},
	{"internal/services/", []string{"internal/http/", "internal/app"}},
	{"internal/http/", []string{"internal/app", "internal/clients/"}},
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	var violations []string
	eachImport(t, root, func(rel, imp string) {
		for _, l := range layers {
			if !strings.HasPrefix(rel, l.prefix) {
				continue
			}
			for _, bad := range l.disallowed {
				if strings.HasPrefix(imp, modulePath+"/"+bad) {
					violations = append(violations, fmt.Sprintf("- %s imports %q (disallowed: %q)", rel, imp, bad))
				}
			}
		}
	})
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

func TestClientsOnlyImportedByApp(t *testing.T) {
	root, modulePath := moduleRoot(t)
	var violations []string
	eachImport(t, root, func(rel, imp string) {
		if strings.HasPrefix(rel, "internal/app/") || strings.HasPrefix(rel, "internal/clients/") {
			return
		}
		if strings.HasPrefix(imp, modulePath+"/internal/clients/") {
			violations = append(violations, fmt.Sprintf("- %s imports %q", rel, imp))
		}
	})
	if len(violations) > 0 {
		t.Fatalf("internal/clients imported outside internal/app (inject the client instead):\n%s", strings.Join(violations, "\n"))
	}
}

// eachImport calls fn for every import of every .go file under internal/.
func eachImport(t *testing.T, root string, fn func(rel, imp string)) {
	t.Helper()
	fset := token.NewFileSet()
	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, is := range f.Imports {
			if imp, err := strconv.Unquote(is.Path.Value); err == nil {
				fn(filepath.ToSlash(rel), imp)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk internal/: %v", err)
	}
}

func moduleRoot(t *testing.T) (root, modulePath string) {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}

	f, err := os.Open(filepath.Join(dir, "go.mod"))
	if err != nil {
		t.Fatalf("open go.mod: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if mp, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "module "); ok {
			return dir, strings.TrimSpace(mp)
		}
	}
	t.Fatalf("module path not found in go.mod")
	return "", ""
}
