package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/ruleup/application"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func run(args ...string) result {
	var stdout, stderr bytes.Buffer
	err := New().WithOutput(&stdout, &stderr).ExecuteWithArgs(context.Background(), args)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// workspace writes a config using a sqlite database and a filesystem
// package below a temp dir.
func workspace(t *testing.T) (cfgPath, rulesDir string) {
	t.Helper()

	dir := t.TempDir()
	rulesDir = filepath.Join(dir, "rules")
	if err := os.Mkdir(rulesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath = filepath.Join(dir, "ruleup.yaml")
	writeFile(t, cfgPath, `name: cli-test
logging:
  level: error
storage:
  driver: sqlite
  sqlite:
    path: `+filepath.Join(dir, "ruleup.db")+`
package:
  source: filesystem
  filesystem:
    dir: `+rulesDir+`
`)
	return cfgPath, rulesDir
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	res := run("version")
	if res.err != nil {
		t.Fatalf("version error = %v", res.err)
	}
	if !strings.Contains(res.stdout, "ruleup version") {
		t.Errorf("stdout = %q, want version line", res.stdout)
	}
}

func TestHelp(t *testing.T) {
	t.Parallel()

	res := run("--help")
	if res.err != nil {
		t.Fatalf("help error = %v", res.err)
	}
	for _, cmd := range []string{"install", "upgrade", "package", "rule", "status", "validate"} {
		if !strings.Contains(res.stdout, cmd) {
			t.Errorf("help does not list %q", cmd)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	t.Run("requires config", func(t *testing.T) {
		t.Parallel()

		if res := run("validate"); res.err == nil {
			t.Error("validate without -c error = nil, want error")
		}
	})

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()

		cfgPath, _ := workspace(t)
		res := run("validate", "-c", cfgPath)
		if res.err != nil {
			t.Fatalf("validate error = %v", res.err)
		}
		for _, want := range []string{"Configuration is valid", "Name: cli-test", "Storage: sqlite", "Concurrency: 10"} {
			if !strings.Contains(res.stdout, want) {
				t.Errorf("stdout = %q, want %q", res.stdout, want)
			}
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.yaml")
		writeFile(t, path, "storage:\n  driver: cassandra\n")
		if res := run("validate", "-c", path); res.err == nil {
			t.Error("validate error = nil, want error")
		}
	})
}

func TestInvalidFlags(t *testing.T) {
	t.Parallel()

	cfgPath, _ := workspace(t)
	tests := []struct {
		name string
		args []string
	}{
		{"install rule id", []string{"install", "perform", "--rule-id", "abc"}},
		{"upgrade rule", []string{"upgrade", "perform", "--rule", "abc:1"}},
		{"upgrade field", []string{"upgrade", "perform", "--field", "abc.query=TARGET"}},
		{"patch without set", []string{"rule", "patch", "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := run(append(tt.args, "-c", cfgPath)...)
			if !errors.Is(res.err, ErrInvalidFlag) {
				t.Errorf("error = %v, want ErrInvalidFlag", res.err)
			}
		})
	}
}

func TestWorkflow(t *testing.T) {
	t.Parallel()

	cfgPath, rulesDir := workspace(t)
	asset := filepath.Join(rulesDir, "a.yaml")
	writeFile(t, asset, "rule_id: a\nversion: 1\ntype: query\nname: Rule A\nquery: 'host.name: *'\nlanguage: kuery\ntags: [stock]\n")

	must := func(args ...string) string {
		t.Helper()
		res := run(append(args, "-c", cfgPath)...)
		if res.err != nil {
			t.Fatalf("%s error = %v\nstdout: %s\nstderr: %s", strings.Join(args, " "), res.err, res.stdout, res.stderr)
		}
		return res.stdout
	}
	contains := func(out, want string) {
		t.Helper()
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, want %q", out, want)
		}
	}

	contains(must("package", "update"), "1 saved")
	contains(must("install", "review"), "a@1  Rule A (query)")
	contains(must("install", "perform"), "1 installed")
	contains(must("install", "perform", "--rule-id", "a@1"), "PREBUILT_RULE_ALREADY_INSTALLED")
	contains(must("rule", "patch", "a", "--set", "name=My A"), "Patched a (revision 1, customized: true)")

	writeFile(t, asset, "rule_id: a\nversion: 2\ntype: query\nname: Rule A\nquery: 'process.name: *'\nlanguage: kuery\ntags: [stock]\n")
	contains(must("package", "update"), "1 saved")

	review := must("upgrade", "review", "--show-diff")
	contains(review, "Rules to upgrade: 1 (0 with conflicts, 0 non-solvable)")
	contains(review, "a  My A  v1 -> v2 (revision 1)")
	contains(review, "query")
	contains(review, "process.name: *")

	res := run("upgrade", "perform", "--rule", "a:0:2", "-c", cfgPath)
	if !errors.Is(res.err, ErrRulesFailed) {
		t.Errorf("stale revision error = %v, want ErrRulesFailed", res.err)
	}
	contains(res.stdout, "Revision mismatch for rule_id a: expected 0, got 1")

	contains(must("upgrade", "perform", "--dry-run"), "1 would be upgraded")
	contains(must("upgrade", "perform", "--rule", "a:1:2"), "^ a@2  My A (revision 2)")

	var st application.Status
	if err := json.Unmarshal([]byte(must("status", "--json")), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	want := application.Status{NumPrebuiltRulesInstalled: 1, NumPrebuiltRulesTotalInPackage: 1}
	if st != want {
		t.Errorf("status = %+v, want %+v", st, want)
	}
}
