package lang

import (
	"github.com/smacker/go-tree-sitter/javascript"
)

// RegisterJavaScript registers the JavaScript grammar.
func RegisterJavaScript(r *Registry) {
	r.Register("javascript", NewGrammar(GrammarSpec{
		Language: javascript.GetLanguage(),
		ItemQuery: `
			(function_declaration name: (identifier) @name) @item
			(class_declaration name: (identifier) @name) @item
			(export_statement (function_declaration name: (identifier) @name)) @item
			(export_statement (class_declaration name: (identifier) @name)) @item
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @item
		`,
		RefQuery: `
			(call_expression function: (identifier) @call)
			(call_expression function: (member_expression property: (property_identifier) @call))
			(import_statement (import_clause (named_imports (import_specifier name: (identifier) @import.name))) source: (string) @import.path)
			(import_statement source: (string) @import.path)
			(export_statement (export_clause (export_specifier name: (identifier) @reexport.name)) source: (string) @reexport.path)
			(export_statement (export_clause (export_specifier name: (identifier) @reexport.name alias: (identifier) @reexport.alias)) source: (string) @reexport.path)
		`,
		Kinds: map[string]string{
			"function_declaration": "function",
			"class_declaration":    "class",
			"export_statement":     "function",
			"lexical_declaration":  "function",
		},
	}), true, "js", "jsx", "mjs", "cjs")
}
