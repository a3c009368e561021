package builder

import "path/filepath"

// LibraryRegistry maps declared library names to the absolute path of the
// artifact that produces them.
type LibraryRegistry map[string]string

func (r LibraryRegistry) Register(name, path string) {
	r[name] = path
}

// LinkInput resolves a library name for the link step. Libraries declared in this
// project resolve to their output path and are reported as internal. Anything
// else is an external reference: a name carrying a file extension is passed
// through literally, a bare name becomes `-l<name>`.
func (r LibraryRegistry) LinkInput(name string) (input string, internal bool) {
	if path, ok := r[name]; ok {
		return path, true
	}
	if filepath.Ext(name) != "" {
		return name, false
	}
	return "-l" + name, false
}
