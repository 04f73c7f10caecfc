package reposdk

import (
	"fmt"
	"strings"
)

// gitmoduleSection is one [submodule "name"] section parsed out of a
// .gitmodules blob. Only the subkeys the submodule engine consumes are
// kept; unknown
// subkeys are ignored rather than rejected, the same permissiveness real
// git config parsing has for keys it doesn't recognize.
type gitmoduleSection struct {
	name string

	path    string
	hasPath bool

	url    string
	hasURL bool

	active    bool
	hasActive bool
}

// parseGitmodules parses the INI-like grammar of a .gitmodules file.
// Parsing is hand-rolled rather than delegated to a general TOML/INI
// library: git config syntax (quoted subsection names, `;`/`#`
// comments) isn't actually INI or TOML, so a generic parser would
// either reject valid files or silently accept invalid ones.
func parseGitmodules(data []byte) ([]gitmoduleSection, error) {
	var sections []gitmoduleSection
	var current *gitmoduleSection

	for lineNo, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("malformed section header at line %d: %q", lineNo+1, raw)
			}
			name, ok := parseSubmoduleHeader(line[1 : len(line)-1])
			if !ok {
				// A section we don't care about (e.g. [core]); subsequent
				// key/value lines belong to it, not to any submodule.
				current = nil
				continue
			}
			sections = append(sections, gitmoduleSection{name: name})
			current = &sections[len(sections)-1]
			continue
		}

		if current == nil {
			continue
		}

		key, value, ok := parseConfigLine(line)
		if !ok {
			return nil, fmt.Errorf("malformed config line %d: %q", lineNo+1, raw)
		}

		switch strings.ToLower(key) {
		case "path":
			current.path = value
			current.hasPath = true
		case "url":
			current.url = value
			current.hasURL = true
		case "active":
			b, err := parseConfigBool(value)
			if err != nil {
				return nil, fmt.Errorf("submodule %q: invalid active value at line %d: %q", current.name, lineNo+1, value)
			}
			current.active = b
			current.hasActive = true
		}
	}

	return sections, nil
}

// parseSubmoduleHeader extracts name from a header body of the form
// `submodule "name"`. Returns ok=false for any other section.
func parseSubmoduleHeader(header string) (name string, ok bool) {
	const prefix = "submodule"
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	rest := strings.TrimSpace(header[len(prefix):])
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

// parseConfigLine splits a `key = value` line, trimming surrounding
// quotes from the value if present.
func parseConfigLine(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx == -1 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(line[idx+1:])
	value = strings.Trim(value, `"`)
	return key, value, true
}

// parseConfigBool parses a git-config boolean value. Anything else is
// rejected.
func parseConfigBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", v)
	}
}
