// Package nosecretlog reports logging calls that receive passwords, tokens or keys.
package nosecretlog

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer flags string or []byte values whose identifier looks like a secret
// (password, secret, token, pepper, signing key) when they are passed to a logging
// call, directly or through a field constructor such as zap.String.
var Analyzer = &analysis.Analyzer{
	Name: "nosecretlog",
	Doc:  "reports secrets passed to logging calls",
	Run:  run,
}

var loggingMethods = map[string]bool{}

func init() {
	for _, level := range []string{"Debug", "Info", "Warn", "Error", "DPanic", "Panic", "Fatal", "Print"} {
		for _, suffix := range []string{"", "f", "w", "ln"} {
			loggingMethods[level+suffix] = true
		}
	}
}

var secretMarkers = []string{"password", "secret", "token", "pepper", "signingkey", "authorization"}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || !isLoggingCall(pass, call) {
				return true
			}

			for _, arg := range call.Args {
				if name, found := findSecret(pass, arg); found {
					pass.Reportf(arg.Pos(), "%s looks like a secret and must not be logged", name)
				}
			}

			return true
		})
	}
	return nil, nil
}

// isLoggingCall matches level methods of any logger. fmt's printing functions
// share the names but write program output, so they are skipped.
func isLoggingCall(pass *analysis.Pass, call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || !loggingMethods[sel.Sel.Name] {
		return false
	}

	if pkgIdent, ok := sel.X.(*ast.Ident); ok {
		if pkgName, ok := pass.TypesInfo.Uses[pkgIdent].(*types.PkgName); ok && pkgName.Imported().Path() == "fmt" {
			return false
		}
	}

	return true
}

// findSecret walks arg, descending into nested calls, and returns the first
// string-typed identifier or field named like a secret.
func findSecret(pass *analysis.Pass, arg ast.Expr) (string, bool) {
	var name string
	ast.Inspect(arg, func(n ast.Node) bool {
		if name != "" {
			return false
		}

		var ident *ast.Ident
		switch node := n.(type) {
		case *ast.Ident:
			ident = node
		case *ast.SelectorExpr:
			ident = node.Sel
		case *ast.FuncLit:
			return false
		default:
			return true
		}

		if looksSecret(ident.Name) && isStringLike(pass.TypesInfo.TypeOf(ident)) {
			name = ident.Name
			return false
		}

		return true
	})

	return name, name != ""
}

func looksSecret(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range secretMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isStringLike(t types.Type) bool {
	if t == nil {
		return false
	}

	switch underlying := t.Underlying().(type) {
	case *types.Basic:
		return underlying.Info()&types.IsString != 0
	case *types.Slice:
		elem, ok := underlying.Elem().Underlying().(*types.Basic)
		return ok && elem.Kind() == types.Byte
	}

	return false
}
