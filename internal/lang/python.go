package lang

import (
	"github.com/smacker/go-tree-sitter/python"
)

// RegisterPython registers the Python grammar.
func RegisterPython(r *Registry) {
	r.Register("python", NewGrammar(GrammarSpec{
		Language: python.GetLanguage(),
		ItemQuery: `
			(function_definition name: (identifier) @name) @item
			(class_definition name: (identifier) @name) @item
			(decorated_definition definition: (function_definition name: (identifier) @name)) @item
			(decorated_definition definition: (class_definition name: (identifier) @name)) @item
		`,
		RefQuery: `
			(call function: (identifier) @call)
			(call function: (attribute attribute: (identifier) @call))
			(import_from_statement module_name: (dotted_name) @import.path name: (dotted_name) @import.name)
			(import_statement name: (dotted_name) @import.path)
		`,
		Kinds: map[string]string{
			"function_definition":  "function",
			"class_definition":     "class",
			"decorated_definition": "function",
		},
	}), true, "py", "pyi")
}
