package ctrl

import "strings"

// DepMarker prefixes a source line declaring one external library,
// e.g. "// requires: libcurl".
const DepMarker = "// requires:"

// ExtractLibraries scans source text for dependency markers and
// returns the declared library set. Duplicates coalesce; blank
// identifiers are ignored.
func ExtractLibraries(source string) LibSet {
	libs := LibSet{}
	source = strings.ReplaceAll(source, "\r\n", "\n")
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, DepMarker) {
			continue
		}
		if id := strings.TrimSpace(strings.TrimPrefix(line, DepMarker)); id != "" {
			libs.Add(id)
		}
	}
	return libs
}
