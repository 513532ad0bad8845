// Package condition turns the boolean expressions a developer types next to
// an instrument into the canonical form the instrument service evaluates.
//
// Expressions use C-family syntax (==, !=, &&, ||, !, comparisons, field
// access, calls and literals), which go/parser accepts as Go expressions.
package condition

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"

	"github.com/tinytelemetry/lotus-live/internal/model"
)

// ErrEmpty is returned for blank expressions.
var ErrEmpty = errors.New("condition: empty expression")

// literals are identifiers that never need to be in scope.
var literals = map[string]bool{
	"true":  true,
	"false": true,
	"null":  true,
	"nil":   true,
	"this":  true,
}

// Parser implements model.ConditionParser.
type Parser struct {
	// Strict rejects root identifiers that are not among the scope
	// variables. Ignored when the scope is empty.
	Strict bool
}

var _ model.ConditionParser = (*Parser)(nil)

// ParseCondition validates raw and returns its canonical wire form.
func (p *Parser) ParseCondition(raw string, src model.SourceContext) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}

	expr, err := parser.ParseExpr(raw)
	if err != nil {
		return "", fmt.Errorf("condition: %w", err)
	}
	if !booleanShaped(expr) {
		return "", fmt.Errorf("condition: %q is not a boolean expression", raw)
	}
	if err := checkNodes(expr); err != nil {
		return "", err
	}
	if p != nil && p.Strict && len(src.Variables) > 0 {
		if err := checkScope(expr, src.Variables); err != nil {
			return "", err
		}
	}

	ast.Inspect(expr, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == "nil" {
			id.Name = "null"
		}
		return true
	})
	return types.ExprString(expr), nil
}

// booleanShaped accepts expressions whose top level can yield a boolean.
// Arithmetic and bare literals other than true/false are rejected.
func booleanShaped(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.ParenExpr:
		return booleanShaped(x.X)
	case *ast.BinaryExpr:
		switch x.Op {
		case token.LAND, token.LOR:
			return booleanShaped(x.X) && booleanShaped(x.Y)
		case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
			return true
		}
		return false
	case *ast.UnaryExpr:
		return x.Op == token.NOT && booleanShaped(x.X)
	case *ast.Ident:
		return x.Name != "nil" && x.Name != "null"
	case *ast.SelectorExpr, *ast.CallExpr, *ast.IndexExpr:
		return true
	}
	return false
}

// checkNodes rejects Go-only constructs that have no C-family meaning.
func checkNodes(e ast.Expr) error {
	var bad ast.Node
	ast.Inspect(e, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.FuncLit, *ast.CompositeLit, *ast.TypeAssertExpr, *ast.SliceExpr,
			*ast.StarExpr, *ast.ChanType, *ast.MapType, *ast.ArrayType, *ast.KeyValueExpr:
			bad = n
			return false
		case *ast.UnaryExpr:
			if x.Op == token.ARROW || x.Op == token.AND {
				bad = n
				return false
			}
		}
		return true
	})
	if bad != nil {
		return fmt.Errorf("condition: unsupported construct %s", types.ExprString(bad.(ast.Expr)))
	}
	return nil
}

func checkScope(e ast.Expr, scope []string) error {
	known := make(map[string]bool, len(scope))
	for _, name := range scope {
		known[name] = true
	}

	var unknown string
	var walk func(ast.Expr)
	walk = func(x ast.Expr) {
		if unknown != "" || x == nil {
			return
		}
		switch v := x.(type) {
		case *ast.Ident:
			if !literals[v.Name] && !known[v.Name] {
				unknown = v.Name
			}
		case *ast.SelectorExpr:
			walk(v.X)
		case *ast.CallExpr:
			// Bare function names are resolved by the agent.
			if _, ok := v.Fun.(*ast.Ident); !ok {
				walk(v.Fun)
			}
			for _, a := range v.Args {
				walk(a)
			}
		case *ast.IndexExpr:
			walk(v.X)
			walk(v.Index)
		case *ast.ParenExpr:
			walk(v.X)
		case *ast.UnaryExpr:
			walk(v.X)
		case *ast.BinaryExpr:
			walk(v.X)
			walk(v.Y)
		}
	}
	walk(e)

	if unknown != "" {
		return fmt.Errorf("condition: unknown variable %q", unknown)
	}
	return nil
}
