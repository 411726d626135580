package lang

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// GrammarSpec defines the tree-sitter grammar and queries for a language.
type GrammarSpec struct {
	Language *sitter.Language
	// ItemQuery is a tree-sitter S-expression query that captures top-level
	// declarations. It must use @item for the outer node and @name for the
	// identifier (optional).
	ItemQuery string
	// RefQuery captures identifier usages. Recognized capture names:
	// @call, @mention, @import.path, @import.name, @reexport.name,
	// @reexport.path.
	RefQuery string
	// Kinds maps tree-sitter node types to declaration kinds.
	Kinds map[string]string
}

// Grammar is a Producer backed by a tree-sitter grammar.
type Grammar struct {
	spec GrammarSpec
}

// NewGrammar creates a grammar-based producer from a spec.
func NewGrammar(spec GrammarSpec) *Grammar {
	return &Grammar{spec: spec}
}

type span struct {
	start, end uint32
}

// Items parses the source and returns one item per captured declaration.
// Nested captures are deduplicated keeping the outer node, so a method
// captured inside its class does not produce a second item.
func (g *Grammar) Items(path string, src []byte) ([]Item, error) {
	tree, err := g.parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(g.spec.ItemQuery), g.spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile item query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var items []Item
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var name string
		for _, cap := range m.Captures {
			switch q.CaptureNameForId(cap.Index) {
			case "item":
				node = cap.Node
			case "name":
				name = cap.Node.Content(src)
			}
		}
		if node == nil {
			continue
		}
		kind := g.spec.Kinds[node.Type()]
		if kind == "" {
			kind = node.Type()
		}
		items = append(items, Item{
			Name:      name,
			Kind:      kind,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
			StartByte: node.StartByte(),
			EndByte:   node.EndByte(),
		})
	}
	return dedupItems(items), nil
}

// References parses the source and returns identifier usages. Usages whose
// byte range coincides with a declaration name from ItemQuery are definition
// sites and are skipped.
func (g *Grammar) References(path string, src []byte) ([]Ref, error) {
	if g.spec.RefQuery == "" {
		return nil, nil
	}
	tree, err := g.parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	defNames, err := g.defNameSpans(tree, src)
	if err != nil {
		return nil, err
	}

	q, err := sitter.NewQuery([]byte(g.spec.RefQuery), g.spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile ref query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var refs []Ref
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		caps := make(map[string]*sitter.Node, len(m.Captures))
		for _, cap := range m.Captures {
			caps[q.CaptureNameForId(cap.Index)] = cap.Node
		}

		switch {
		case caps["call"] != nil:
			n := caps["call"]
			if !defNames[span{n.StartByte(), n.EndByte()}] {
				refs = append(refs, Ref{
					Identifier: n.Content(src),
					Kind:       RefCall,
					Line:       int(n.StartPoint().Row) + 1,
				})
			}
		case caps["reexport.name"] != nil:
			n := caps["reexport.name"]
			p := importPath(caps["reexport.path"], src)
			if a := caps["reexport.alias"]; a != nil {
				// Renamed reexport: the alias is the exported surface and the
				// original name is an import usage; the resolver hops through
				// the pair.
				refs = append(refs,
					Ref{
						Identifier: a.Content(src),
						Kind:       RefReexport,
						Line:       int(a.StartPoint().Row) + 1,
						ImportPath: p,
					},
					Ref{
						Identifier: n.Content(src),
						Kind:       RefImport,
						Line:       int(n.StartPoint().Row) + 1,
						ImportPath: p,
					})
				continue
			}
			// The alias-less pattern also matches renamed specifiers; those
			// produce the pair above, not a plain reexport of the original.
			if parent := n.Parent(); parent != nil && parent.ChildByFieldName("alias") != nil {
				continue
			}
			refs = append(refs, Ref{
				Identifier: n.Content(src),
				Kind:       RefReexport,
				Line:       int(n.StartPoint().Row) + 1,
				ImportPath: p,
			})
		case caps["import.name"] != nil:
			n := caps["import.name"]
			refs = append(refs, Ref{
				Identifier: n.Content(src),
				Kind:       RefImport,
				Line:       int(n.StartPoint().Row) + 1,
				ImportPath: importPath(caps["import.path"], src),
			})
		case caps["import.path"] != nil:
			n := caps["import.path"]
			p := importPath(n, src)
			refs = append(refs, Ref{
				Identifier: lastSegment(p),
				Kind:       RefImport,
				Line:       int(n.StartPoint().Row) + 1,
				ImportPath: p,
			})
		case caps["mention"] != nil:
			n := caps["mention"]
			if !defNames[span{n.StartByte(), n.EndByte()}] {
				refs = append(refs, Ref{
					Identifier: n.Content(src),
					Kind:       RefMention,
					Line:       int(n.StartPoint().Row) + 1,
				})
			}
		}
	}
	return refs, nil
}

func (g *Grammar) parse(src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(g.spec.Language)
	return parser.ParseCtx(context.Background(), nil, src)
}

// defNameSpans collects the byte spans of declaration names so References
// can tell a usage from a definition site.
func (g *Grammar) defNameSpans(tree *sitter.Tree, src []byte) (map[span]bool, error) {
	q, err := sitter.NewQuery([]byte(g.spec.ItemQuery), g.spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile item query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	spans := make(map[span]bool)
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, cap := range m.Captures {
			if q.CaptureNameForId(cap.Index) == "name" {
				spans[span{cap.Node.StartByte(), cap.Node.EndByte()}] = true
			}
		}
	}
	return spans, nil
}

// dedupItems removes items fully contained within a larger item, keeping the
// outer one.
func dedupItems(items []Item) []Item {
	if len(items) <= 1 {
		return items
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartByte != items[j].StartByte {
			return items[i].StartByte < items[j].StartByte
		}
		return (items[i].EndByte - items[i].StartByte) > (items[j].EndByte - items[j].StartByte)
	})

	var result []Item
	var lastEnd uint32
	for _, it := range items {
		if len(result) == 0 || it.StartByte >= lastEnd {
			result = append(result, it)
			if it.EndByte > lastEnd {
				lastEnd = it.EndByte
			}
		}
	}
	return result
}

func importPath(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return strings.Trim(n.Content(src), `"'`+"`")
}

func lastSegment(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndexAny(p, "/."); i >= 0 {
		return p[i+1:]
	}
	return p
}
