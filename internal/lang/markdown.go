package lang

import (
	"path"
	"regexp"
	"strings"
)

// Markdown splits prose by ATX heading boundaries. Each heading opens a
// section item that runs until the next heading of any level. Inline links
// become inbound-link references so prose participates in the reference
// graph.
type Markdown struct{}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	linkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
)

// Items returns one section item per heading. Text before the first heading
// is leading material and is attached to the first chunk by the builder.
func (Markdown) Items(path string, src []byte) ([]Item, error) {
	lines := strings.Split(string(src), "\n")

	var items []Item
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if n := len(items); n > 0 {
			items[n-1].EndLine = i
		}
		items = append(items, Item{
			Name:      m[2],
			Kind:      "section",
			StartLine: i + 1,
			EndLine:   len(lines),
		})
	}
	return items, nil
}

// References returns one link reference per inline link target.
func (Markdown) References(path string, src []byte) ([]Ref, error) {
	var refs []Ref
	for i, line := range strings.Split(string(src), "\n") {
		for _, m := range linkRe.FindAllStringSubmatch(line, -1) {
			target := m[2]
			if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
				continue
			}
			ident := linkIdentifier(target)
			if ident == "" {
				continue
			}
			refs = append(refs, Ref{
				Identifier: ident,
				Kind:       RefLink,
				Line:       i + 1,
				ImportPath: target,
			})
		}
	}
	return refs, nil
}

// linkIdentifier derives the identifier a link points at: the fragment when
// present, otherwise the target file's name without its extension.
func linkIdentifier(target string) string {
	base, frag, _ := strings.Cut(target, "#")
	if frag != "" {
		return frag
	}
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return ""
	}
	name := path.Base(base)
	return strings.TrimSuffix(name, path.Ext(name))
}
