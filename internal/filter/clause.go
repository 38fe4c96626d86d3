// Package filter compiles the resolver's small filter language into
// parameterised SQL fragments.
//
// A clause has the shape <field> <operator> <literal>, for example
// "FileCount > 2" or "FilePath LIKE '/photos/%'". Literals are bound as
// named parameters and never appear in the generated SQL text. Text that
// does not have that shape at all is a raw clause: it is passed through
// unchanged unless the compiler is strict.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned for clauses that look like filters but cannot be
// safely parameterised.
var ErrInvalidFilter = errors.New("invalid filter")

// Operator is a comparison operator accepted in a clause.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "<>"
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLike         Operator = "LIKE"
)

// LiteralKind classifies the right-hand side of a clause.
type LiteralKind int

const (
	LiteralString LiteralKind = iota + 1
	LiteralInteger
	LiteralNull
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralString:
		return "string"
	case LiteralInteger:
		return "integer"
	case LiteralNull:
		return "null"
	default:
		return "unknown"
	}
}

// Literal is a typed, validated clause value.
type Literal struct {
	Kind LiteralKind
	Str  string
	Int  int64
}

// Value returns the literal as a driver value. NULL is nil.
func (l Literal) Value() any {
	switch l.Kind {
	case LiteralString:
		return l.Str
	case LiteralInteger:
		return l.Int
	default:
		return nil
	}
}

// Clause is one parsed filter expression. Raw is set (and the other fields are
// zero) when the text did not match the clause pattern.
type Clause struct {
	Field string
	Op    Operator
	Value Literal
	Raw   string
}

// IsRaw reports whether the clause is an unparsed passthrough.
func (c Clause) IsRaw() bool {
	return c.Raw != ""
}

func (c Clause) String() string {
	if c.IsRaw() {
		return c.Raw
	}
	return fmt.Sprintf("%s %s <%s>", c.Field, c.Op, c.Value.Kind)
}

var (
	clausePattern  = regexp.MustCompile(`(?is)^\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?)\s*(<>|<=|>=|=|<|>|\bLIKE\b)\s*(.+?)\s*$`)
	stringPattern  = regexp.MustCompile(`(?s)^'((?:[^']|'')*)'$`)
	integerPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Parse parses a single clause. Text that does not match the clause shape is
// returned as a raw clause; text that matches but carries an unrecognised
// literal is rejected.
func Parse(text string) (Clause, error) {
	if strings.TrimSpace(text) == "" {
		return Clause{}, fmt.Errorf("%w: empty clause", ErrInvalidFilter)
	}

	m := clausePattern.FindStringSubmatch(text)
	if m == nil {
		return Clause{Raw: strings.TrimSpace(text)}, nil
	}

	lit, err := parseLiteral(m[3])
	if err != nil {
		return Clause{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, text, err)
	}

	return Clause{
		Field: m[1],
		Op:    Operator(strings.ToUpper(m[2])),
		Value: lit,
	}, nil
}

func parseLiteral(s string) (Literal, error) {
	if m := stringPattern.FindStringSubmatch(s); m != nil {
		return Literal{Kind: LiteralString, Str: strings.ReplaceAll(m[1], "''", "'")}, nil
	}
	if integerPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Literal{}, fmt.Errorf("integer out of range: %s", s)
		}
		return Literal{Kind: LiteralInteger, Int: n}, nil
	}
	if strings.EqualFold(s, "NULL") {
		return Literal{Kind: LiteralNull}, nil
	}
	return Literal{}, fmt.Errorf("unrecognised literal %s", s)
}
