// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"bytes"
	"strings"
)

// mergeLang folds key=value localization files (upstream first). Keys keep
// the position of their first appearance; values are last-writer-wins. Blank
// lines, # comments and lines without '=' are dropped.
func mergeLang(docs [][]byte) []byte {
	var keys []string
	values := make(map[string]string)

	for _, data := range docs {
		data = bytes.TrimPrefix(data, []byte("\ufeff"))
		for line := range strings.Lines(string(data)) {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if _, seen := values[key]; !seen {
				keys = append(keys, key)
			}
			values[key] = strings.TrimSpace(value)
		}
	}

	var buf bytes.Buffer
	for _, key := range keys {
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(values[key])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
