package lang

import (
	"github.com/smacker/go-tree-sitter/golang"
)

// RegisterGo registers the Go grammar.
func RegisterGo(r *Registry) {
	r.Register("go", NewGrammar(GrammarSpec{
		Language: golang.GetLanguage(),
		ItemQuery: `
			(function_declaration name: (identifier) @name) @item
			(method_declaration name: (field_identifier) @name) @item
			(type_declaration (type_spec name: (type_identifier) @name)) @item
			(const_declaration) @item
			(var_declaration) @item
		`,
		RefQuery: `
			(call_expression function: (identifier) @call)
			(call_expression function: (selector_expression field: (field_identifier) @call))
			(import_spec path: (interpreted_string_literal) @import.path)
			(type_identifier) @mention
		`,
		Kinds: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
			"const_declaration":    "const",
			"var_declaration":      "var",
		},
	}), true, "go")
}
