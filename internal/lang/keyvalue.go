package lang

import (
	"strings"
	"unicode"
)

// KeyValue splits configuration formats by top-level key groups: a group
// starts at an unindented `key<assign>` line or a `[section]` header and runs
// until the next one. Works for YAML (Assign ":"), TOML and INI (Assign "=").
type KeyValue struct {
	Assign string
}

// Items returns one keygroup item per top-level key or section header.
func (kv KeyValue) Items(path string, src []byte) ([]Item, error) {
	lines := strings.Split(string(src), "\n")

	var items []Item
	for i, line := range lines {
		name, ok := kv.topLevelKey(line)
		if !ok {
			continue
		}
		if n := len(items); n > 0 {
			items[n-1].EndLine = i
		}
		items = append(items, Item{
			Name:      name,
			Kind:      "keygroup",
			StartLine: i + 1,
			EndLine:   len(lines),
		})
	}
	return items, nil
}

// References returns nil: key/value formats carry no identifier usages.
func (KeyValue) References(path string, src []byte) ([]Ref, error) {
	return nil, nil
}

func (kv KeyValue) topLevelKey(line string) (string, bool) {
	if line == "" || unicode.IsSpace(rune(line[0])) {
		return "", false
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
		return "", false
	}
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		return strings.Trim(trimmed, "[]"), true
	}
	idx := strings.Index(trimmed, kv.Assign)
	if idx <= 0 {
		return "", false
	}
	key := strings.TrimSpace(trimmed[:idx])
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", false
	}
	return strings.Trim(key, `"'`), true
}
