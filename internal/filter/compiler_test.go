package filter

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestCompiler_Compile_RowScope(t *testing.T) {
	c := NewCompiler(false)

	got, err := c.Compile(RowScope, []string{
		"Algorithm = 'sha256'",
		"FilePath LIKE '/photos/%'",
		"FileSize > 1024",
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	wantClauses := []string{
		"a.AlgorithmName = @r0",
		"fh.FilePath LIKE @r1",
		"fh.FileSize > @r2",
	}
	if len(got.Clauses) != len(wantClauses) {
		t.Fatalf("len(Clauses) = %d, want %d", len(got.Clauses), len(wantClauses))
	}
	for i := range wantClauses {
		if got.Clauses[i] != wantClauses[i] {
			t.Errorf("Clauses[%d] = %q, want %q", i, got.Clauses[i], wantClauses[i])
		}
	}

	if got.Params["r0"] != "SHA256" {
		t.Errorf("Params[r0] = %v, want canonical SHA256", got.Params["r0"])
	}
	if got.Params["r1"] != "/photos/%" {
		t.Errorf("Params[r1] = %v, want /photos/%%", got.Params["r1"])
	}
	if got.Params["r2"] != int64(1024) {
		t.Errorf("Params[r2] = %v (%T), want int64 1024", got.Params["r2"], got.Params["r2"])
	}
	if len(got.Raw) != 0 {
		t.Errorf("Raw = %v, want none", got.Raw)
	}
}

func TestCompiler_Compile_GroupScope(t *testing.T) {
	c := NewCompiler(false)

	got, err := c.Compile(GroupScope, []string{"FileCount > 2", "AlgorithmName = 'MD5'", "Hash = NULL"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := []string{"FileCount > @g0", "Algorithm = @g1", "Hash IS @g2"}
	for i := range want {
		if got.Clauses[i] != want[i] {
			t.Errorf("Clauses[%d] = %q, want %q", i, got.Clauses[i], want[i])
		}
	}
	if v, ok := got.Params["g2"]; !ok || v != nil {
		t.Errorf("Params[g2] = %v (present=%v), want bound nil", v, ok)
	}
}

func TestCompiler_LiteralsNeverInSQL(t *testing.T) {
	c := NewCompiler(false)
	exprs := []string{
		"FilePath = 'x''); DROP TABLE FileHash; --'",
		"FilePath LIKE '%secret%'",
		"FileSize = 4242",
		"Hash <> NULL",
	}

	for _, scope := range []Scope{RowScope, GroupScope} {
		got, err := c.Compile(scope, exprs)
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		sqlText := strings.Join(got.Clauses, " ")
		for _, literal := range []string{"DROP TABLE", "secret", "4242", "NULL"} {
			if strings.Contains(sqlText, literal) {
				t.Errorf("compiled SQL %q contains literal %q", sqlText, literal)
			}
		}
		if len(got.Params) != len(exprs) {
			t.Errorf("len(Params) = %d, want %d", len(got.Params), len(exprs))
		}
	}
}

func TestCompiler_RejectsUnsupportedAlgorithm(t *testing.T) {
	c := NewCompiler(false)

	for _, expr := range []string{"Algorithm = 'SHA3'", "AlgorithmName = 'SHA256'' OR 1=1 --'", "a.AlgorithmName LIKE 'SHA%'"} {
		t.Run(expr, func(t *testing.T) {
			_, err := c.Compile(RowScope, []string{"FileSize > 1", expr})
			if !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("Compile(%q) error = %v, want ErrInvalidFilter", expr, err)
			}
		})
	}
}

func TestCompiler_NullOnlyWithEquality(t *testing.T) {
	c := NewCompiler(false)
	if _, err := c.Compile(RowScope, []string{"FileSize > NULL"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("Compile() error = %v, want ErrInvalidFilter", err)
	}
}

func TestCompiler_RawClauses(t *testing.T) {
	t.Run("passed through when not strict", func(t *testing.T) {
		c := NewCompiler(false)
		got, err := c.Compile(RowScope, []string{"FileSize > 1", "length(fh.FilePath) > 20"})
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if got.Clauses[1] != "length(fh.FilePath) > 20" {
			t.Errorf("Clauses[1] = %q, want raw text", got.Clauses[1])
		}
		if len(got.Raw) != 1 {
			t.Errorf("len(Raw) = %d, want 1", len(got.Raw))
		}
		if _, ok := got.Params["r1"]; ok {
			t.Error("raw clause should not bind a parameter")
		}
	})

	t.Run("rejected when strict", func(t *testing.T) {
		c := NewCompiler(true)
		_, err := c.Compile(RowScope, []string{"length(fh.FilePath) > 20"})
		if !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("Compile() error = %v, want ErrInvalidFilter", err)
		}
	})
}

func TestCompiled_AndArgsMerge(t *testing.T) {
	c := NewCompiler(false)
	row, err := c.Compile(RowScope, []string{"FileSize > 1"})
	if err != nil {
		t.Fatalf("Compile(row) error = %v", err)
	}
	group, err := c.Compile(GroupScope, []string{"FileCount > 3"})
	if err != nil {
		t.Fatalf("Compile(group) error = %v", err)
	}

	if got := row.And(); got != " AND (fh.FileSize > @r0)" {
		t.Errorf("And() = %q", got)
	}
	if got := (Compiled{}).And(); got != "" {
		t.Errorf("empty And() = %q, want empty", got)
	}

	merged := Merge(row, group)
	args := merged.Args()
	if len(args) != 2 {
		t.Fatalf("len(Args()) = %d, want 2", len(args))
	}
	first, ok := args[0].(sql.NamedArg)
	if !ok || first.Name != "g0" || first.Value != int64(3) {
		t.Errorf("Args()[0] = %#v, want g0=3", args[0])
	}
	second, ok := args[1].(sql.NamedArg)
	if !ok || second.Name != "r0" || second.Value != int64(1) {
		t.Errorf("Args()[1] = %#v, want r0=1", args[1])
	}
}
