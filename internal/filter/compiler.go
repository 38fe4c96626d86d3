package filter

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"dupe-go/internal/hashing"
)

// Scope selects which column namespace a clause set is compiled against.
type Scope int

const (
	// RowScope clauses constrain individual FileHash rows (joined with Algorithm).
	RowScope Scope = iota
	// GroupScope clauses constrain aggregated duplicate groups.
	GroupScope
)

func (s Scope) prefix() string {
	if s == GroupScope {
		return "g"
	}
	return "r"
}

// rowColumns qualifies bare field names for queries over FileHash fh JOIN Algorithm a.
var rowColumns = map[string]string{
	"algorithm":     "a.AlgorithmName",
	"algorithmname": "a.AlgorithmName",
	"algorithmid":   "fh.AlgorithmId",
	"filehashid":    "fh.FileHashId",
	"hash":          "fh.Hash",
	"filepath":      "fh.FilePath",
	"filesize":      "fh.FileSize",
	"processedat":   "fh.ProcessedAt",
}

// groupColumns maps aliases onto the columns exposed by grouped queries.
var groupColumns = map[string]string{
	"algorithmname": "Algorithm",
}

func isAlgorithmField(field string) bool {
	f := strings.ToLower(field)
	if i := strings.LastIndex(f, "."); i >= 0 {
		f = f[i+1:]
	}
	return f == "algorithm" || f == "algorithmname"
}

// Compiled is the output of a compilation: SQL fragments with named
// placeholders and the values bound to them.
type Compiled struct {
	Clauses []string
	Params  map[string]any
	// Raw lists the clauses that were passed through without parameterisation.
	Raw []string
}

// Empty reports whether there is nothing to add to a query.
func (c Compiled) Empty() bool {
	return len(c.Clauses) == 0
}

// And renders the fragments as a conjunction suffix (" AND (c1) AND (c2)"),
// or an empty string when there are none.
func (c Compiled) And() string {
	var b strings.Builder
	for _, clause := range c.Clauses {
		b.WriteString(" AND (")
		b.WriteString(clause)
		b.WriteString(")")
	}
	return b.String()
}

// Args returns the bound values as named arguments, sorted by name.
func (c Compiled) Args() []any {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = sql.Named(name, c.Params[name])
	}
	return args
}

// Merge combines two compilations. Placeholder names must not overlap, which
// holds for a row and a group compilation.
func Merge(parts ...Compiled) Compiled {
	out := Compiled{Params: make(map[string]any)}
	for _, p := range parts {
		out.Clauses = append(out.Clauses, p.Clauses...)
		out.Raw = append(out.Raw, p.Raw...)
		for k, v := range p.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Compiler turns clause text into Compiled fragments.
type Compiler struct {
	// Strict rejects raw clauses instead of passing them through.
	Strict bool
}

// NewCompiler returns a compiler. Raw clauses are accepted unless strict is set.
func NewCompiler(strict bool) *Compiler {
	return &Compiler{Strict: strict}
}

// Compile parses and compiles each expression in order.
func (c *Compiler) Compile(scope Scope, exprs []string) (Compiled, error) {
	clauses := make([]Clause, 0, len(exprs))
	for _, expr := range exprs {
		clause, err := Parse(expr)
		if err != nil {
			return Compiled{}, err
		}
		clauses = append(clauses, clause)
	}
	return c.CompileClauses(scope, clauses)
}

// CompileClauses compiles already parsed clauses. Placeholder names are
// @r<N> for row scope and @g<N> for group scope, N being the clause position.
func (c *Compiler) CompileClauses(scope Scope, clauses []Clause) (Compiled, error) {
	out := Compiled{Params: make(map[string]any)}

	for i, clause := range clauses {
		if clause.IsRaw() {
			if c.Strict {
				return Compiled{}, fmt.Errorf("%w: %q is not of the form <field> <operator> <literal>", ErrInvalidFilter, clause.Raw)
			}
			out.Clauses = append(out.Clauses, clause.Raw)
			out.Raw = append(out.Raw, clause.Raw)
			continue
		}

		value := clause.Value
		if isAlgorithmField(clause.Field) && value.Kind == LiteralString {
			name, err := hashing.Canonical(value.Str)
			if err != nil {
				return Compiled{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
			}
			value.Str = name
		}

		op, err := sqlOperator(clause.Op, value.Kind)
		if err != nil {
			return Compiled{}, err
		}

		name := fmt.Sprintf("%s%d", scope.prefix(), i)
		out.Clauses = append(out.Clauses, fmt.Sprintf("%s %s @%s", column(scope, clause.Field), op, name))
		out.Params[name] = value.Value()
	}

	return out, nil
}

// sqlOperator maps a clause operator to SQL; NULL comparisons use IS / IS NOT
// so the literal can still be bound as a parameter.
func sqlOperator(op Operator, kind LiteralKind) (string, error) {
	if kind != LiteralNull {
		return string(op), nil
	}
	switch op {
	case OpEqual:
		return "IS", nil
	case OpNotEqual:
		return "IS NOT", nil
	default:
		return "", fmt.Errorf("%w: NULL can only be compared with = or <>", ErrInvalidFilter)
	}
}

func column(scope Scope, field string) string {
	if strings.Contains(field, ".") {
		return field
	}
	key := strings.ToLower(field)
	switch scope {
	case RowScope:
		if col, ok := rowColumns[key]; ok {
			return col
		}
	case GroupScope:
		if col, ok := groupColumns[key]; ok {
			return col
		}
	}
	return field
}
