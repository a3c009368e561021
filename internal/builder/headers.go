package builder

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/qobs-build/mgen/internal/msg"
)

// HeaderSet is a sorted set of absolute header paths
type HeaderSet []string

func (s HeaderSet) Contains(path string) bool {
	_, ok := slices.BinarySearch(s, path)
	return ok
}

// include is one #include directive found in a file
type include struct {
	name   string
	quoted bool
}

var includeRegex = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)

// scanIncludes lexically extracts the include directives of a file
func scanIncludes(path string) ([]include, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var includes []include
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		m := includeRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		includes = append(includes, include{name: strings.TrimSpace(m[2]), quoted: m[1] == `"`})
	}
	return includes, sc.Err()
}

// HeaderResolver finds the transitive project headers of source files. Results
// are memoized for the lifetime of the resolver; the filesystem is assumed not
// to change while it is in use.
type HeaderResolver struct {
	dirs     []string
	direct   map[string][]string // file -> resolved direct includes
	cache    map[string]HeaderSet
	external map[string][]string // file -> includes assumed to be external
	scans    int
}

// NewHeaderResolver returns a resolver that only follows headers found under
// dirs, searched in order.
func NewHeaderResolver(dirs []string) *HeaderResolver {
	return &HeaderResolver{
		dirs:     slices.Clone(dirs),
		direct:   make(map[string][]string),
		cache:    make(map[string]HeaderSet),
		external: make(map[string][]string),
	}
}

// External returns the include names of file that were not found in any project
// directory.
func (r *HeaderResolver) External(file string) []string {
	return slices.Clone(r.external[absPath(file)])
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// directIncludes returns the resolved includes of a single file, scanning it on
// first use only.
func (r *HeaderResolver) directIncludes(file string) []string {
	if deps, ok := r.direct[file]; ok {
		return deps
	}

	r.scans++
	includes, err := scanIncludes(file)
	if err != nil {
		msg.Warn("could not scan %s for includes: %v", file, err)
	}

	var deps, notfound []string
	for _, inc := range includes {
		dirs := r.dirs
		if inc.quoted {
			dirs = append([]string{filepath.Dir(file)}, r.dirs...)
		}
		path, ok := locateOne(inc.name, dirs)
		if !ok {
			notfound = append(notfound, inc.name)
			continue
		}
		if !slices.Contains(deps, path) {
			deps = append(deps, path)
		}
	}

	if len(notfound) > 0 {
		r.external[file] = notfound
		msg.Warn("for %s, assuming %s are external headers. If this is incorrect, set the project include directories correctly (currently %s)",
			file, strings.Join(notfound, ", "), strings.Join(r.dirs, ", "))
	}

	r.direct[file] = deps
	return deps
}

// HeadersOf returns every project header file transitively includes. Include
// cycles are allowed: all files of a cycle share the same closure, and a file is
// never part of its own set.
func (r *HeaderResolver) HeadersOf(file string) HeaderSet {
	file = absPath(file)
	if set, ok := r.cache[file]; ok {
		msg.Debug("found %s in header cache", file)
		return slices.Clone(set)
	}

	w := &sccWalk{r: r, index: make(map[string]int), low: make(map[string]int), onStack: make(map[string]bool)}
	w.visit(file)
	return slices.Clone(r.cache[file])
}

// sccWalk is one run of Tarjan's algorithm over the include graph. Each strongly
// connected component is cached as soon as it is complete.
type sccWalk struct {
	r       *HeaderResolver
	next    int
	index   map[string]int
	low     map[string]int
	stack   []string
	onStack map[string]bool
}

func (w *sccWalk) visit(file string) {
	w.index[file] = w.next
	w.low[file] = w.next
	w.next++
	w.stack = append(w.stack, file)
	w.onStack[file] = true

	for _, dep := range w.r.directIncludes(file) {
		if _, done := w.r.cache[dep]; done {
			continue
		}
		if _, seen := w.index[dep]; !seen {
			msg.Debug("for %s, recursing through %s", file, dep)
			w.visit(dep)
			w.low[file] = min(w.low[file], w.low[dep])
		} else if w.onStack[dep] {
			w.low[file] = min(w.low[file], w.index[dep])
		}
	}

	if w.low[file] != w.index[file] {
		return
	}

	// file is the root of a component: pop it and give every member the union
	var component []string
	for {
		top := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		w.onStack[top] = false
		component = append(component, top)
		if top == file {
			break
		}
	}

	union := make(map[string]struct{})
	for _, member := range component {
		for _, dep := range w.r.directIncludes(member) {
			union[dep] = struct{}{}
			if slices.Contains(component, dep) {
				continue
			}
			for _, h := range w.r.cache[dep] {
				union[h] = struct{}{}
			}
		}
	}

	for _, member := range component {
		set := make(HeaderSet, 0, len(union))
		for h := range union {
			if h != member {
				set = append(set, h)
			}
		}
		slices.Sort(set)
		msg.Debug("adding entry to header cache: %s: %v", member, set)
		w.r.cache[member] = set
	}
}
