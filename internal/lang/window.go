package lang

import "strings"

// windowLines is the fixed window height for formats with no better
// structure signal.
const windowLines = 80

// Window splits any text into fixed-size line windows. It is the fallback of
// last resort: used for plain text and for files whose grammar failed to
// parse.
type Window struct{}

// Items returns consecutive fixed-size windows covering the file.
func (Window) Items(path string, src []byte) ([]Item, error) {
	total := len(strings.Split(string(src), "\n"))

	var items []Item
	for start := 1; start <= total; start += windowLines {
		end := start + windowLines - 1
		if end > total {
			end = total
		}
		items = append(items, Item{
			Kind:      "window",
			StartLine: start,
			EndLine:   end,
		})
	}
	return items, nil
}

// References returns nil: windows carry no identifier usages.
func (Window) References(path string, src []byte) ([]Ref, error) {
	return nil, nil
}
