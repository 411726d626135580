package lang

// Item is one content item produced from a file: a declaration, a heading
// section, or a top-level key/value group. Chunk boundaries are drawn at
// item spans.
type Item struct {
	Name      string
	Kind      string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	StartByte uint32
	EndByte   uint32
}

// RefKind classifies how an identifier is used.
type RefKind string

const (
	RefCall     RefKind = "call"
	RefImport   RefKind = "import"
	RefLink     RefKind = "link"
	RefReexport RefKind = "reexport"
	RefMention  RefKind = "mention"
)

// Ref is a single identifier usage found in a file. ImportPath is set for
// import and reexport references and feeds the resolver's alias hop.
type Ref struct {
	Identifier string
	Kind       RefKind
	Line       int // 1-indexed
	ImportPath string
}

// Producer turns file content into ordered content items and reference
// usages. Implementations are grammar-based (tree-sitter), heading-based,
// key-group-based, or fixed-window.
type Producer interface {
	// Items returns the content items of the file in source order.
	Items(path string, src []byte) ([]Item, error)
	// References returns identifier usages that are not definition sites.
	References(path string, src []byte) ([]Ref, error)
}
