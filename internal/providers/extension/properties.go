package extension

import (
	"bufio"
	"bytes"
	"strings"
)

// parseProperties reads key=value (or key: value) lines. Blank lines and
// lines starting with # or ! are ignored.
func parseProperties(data []byte) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}
		i := strings.IndexAny(line, "=:")
		if i < 0 {
			props[line] = ""
			continue
		}
		key := strings.TrimSpace(line[:i])
		if key != "" {
			props[key] = strings.TrimSpace(line[i+1:])
		}
	}
	return props
}
