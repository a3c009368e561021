package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/qobs-build/mgen/internal/builder/gen"
)

type Kind int

const (
	KindExecutable Kind = iota
	KindLibrary
	// KindInstall is a plain file that is only installed, never built
	KindInstall
)

func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindLibrary:
		return "library"
	case KindInstall:
		return "install"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// fingerprintLen is the number of hex digits of the object fingerprint kept in
// object file names
const fingerprintLen = 24

// Target is one library or executable, fully resolved against the global
// defaults at declaration time.
type Target struct {
	Name        string
	Path        string // absolute output path
	Kind        Kind
	Sources     map[string]HeaderSet
	Libraries   []string
	Cflags      []string
	IncludeDirs []string
	Lflags      []string
	LinkDirs    []string
	Compiler    Compiler
	InstallDir  string
	Debug       bool

	objDir          string
	readableObjects bool
}

func (t *Target) sortedSources() []string {
	return slices.Sorted(maps.Keys(t.Sources))
}

func writeField(h hash.Hash, s string) {
	fmt.Fprintf(h, "%d:%s;", len(s), s)
}

// writeFields hashes fields in the order given: that is the order they appear on
// the compiler command line, and for include directories it decides lookup.
func writeFields(h hash.Hash, section string, fields []string) {
	fmt.Fprintf(h, "%s[%d]", section, len(fields))
	for _, f := range fields {
		writeField(h, f)
	}
}

// fingerprint identifies everything besides the file name that determines the
// bytes of the object compiled from src
func (t *Target) fingerprint(src string) string {
	h := sha256.New()
	writeField(h, filepath.ToSlash(filepath.Dir(src)))
	writeField(h, t.Compiler.identity())
	writeField(h, t.Compiler.CompileOnly)
	writeFields(h, "cflags", t.Cflags)
	writeFields(h, "include", t.IncludeDirs)
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

var unreadableRunes = regexp.MustCompile(`[^A-Za-z0-9+-]+`)

// readableFlags turns the compile flags into a file name fragment
func (t *Target) readableFlags() string {
	parts := []string{filepath.Base(t.Compiler.Name)}
	parts = append(parts, t.Cflags...)
	for i, p := range parts {
		parts[i] = strings.Trim(unreadableRunes.ReplaceAllString(p, "_"), "_")
	}
	return strings.Join(slices.DeleteFunc(parts, func(p string) bool { return p == "" }), "_")
}

// ObjectPath returns the content-addressed object file for src. Any two targets
// compiling src with the same compiler, flags and include directories share it.
// Readable object names only add the flags in front of the fingerprint.
func (t *Target) ObjectPath(src string) string {
	base := filepath.Base(src)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if t.readableObjects {
		name += "." + t.readableFlags()
	}
	return filepath.Join(t.objDir, name+"."+t.fingerprint(src)+".o")
}

// ObjectPaths returns the object files of all sources, sorted by source
func (t *Target) ObjectPaths() []string {
	srcs := t.sortedSources()
	objs := make([]string, len(srcs))
	for i, src := range srcs {
		objs[i] = t.ObjectPath(src)
	}
	return objs
}

func (t *Target) AliasName() string     { return t.Name }
func (t *Target) CleanName() string     { return "clean_" + t.Name }
func (t *Target) InstallName() string   { return "install_" + t.Name }
func (t *Target) UninstallName() string { return "uninstall_" + t.Name }

func (t *Target) hasAlias() bool {
	return t.Kind != KindInstall && t.Name != t.Path
}

func (t *Target) includeFlags() []string {
	flags := make([]string, len(t.IncludeDirs))
	for i, dir := range t.IncludeDirs {
		flags[i] = "-I" + dir
	}
	return flags
}

func (t *Target) compileRule(src string, headers HeaderSet) gen.Rule {
	obj := t.ObjectPath(src)

	args := []string{t.Compiler.Name}
	if t.Compiler.CompileOnly != "" {
		args = append(args, t.Compiler.CompileOnly)
	}
	args = append(args, t.Cflags...)
	args = append(args, t.includeFlags()...)
	args = append(args, src, "-o", obj)

	deps := make([]string, 0, len(headers)+1)
	deps = append(deps, src)
	deps = append(deps, headers...)

	return gen.Rule{
		Name:     obj,
		Deps:     deps,
		Commands: []string{shellJoin("mkdir", "-p", filepath.Dir(obj)), shellJoin(args...)},
	}
}

// linkRule builds the final artifact. Libraries present in reg are linked by path
// and become dependencies; all others are external references.
func (t *Target) linkRule(reg LibraryRegistry) gen.Rule {
	objs := t.ObjectPaths()

	var internal, libs []string
	for _, name := range t.Libraries {
		input, isInternal := reg.LinkInput(name)
		if isInternal {
			if input == t.Path {
				continue
			}
			internal = append(internal, input)
		}
		libs = append(libs, input)
	}

	args := []string{t.Compiler.Name}
	args = append(args, objs...)
	for _, dir := range t.LinkDirs {
		args = append(args, "-L"+dir)
	}
	args = append(args, libs...)
	args = append(args, t.Lflags...)
	args = append(args, "-o", t.Path)

	rule := gen.Rule{
		Name:     t.Path,
		Deps:     append(objs, internal...),
		Commands: []string{shellJoin("mkdir", "-p", filepath.Dir(t.Path)), shellJoin(args...)},
	}
	if !t.hasAlias() {
		rule.Help = fmt.Sprintf("Builds %s %s.", t.Kind, t.Name)
	}
	return rule
}

func (t *Target) cleanRule() gen.Rule {
	args := append([]string{"rm", "-f", t.Path}, t.ObjectPaths()...)
	return gen.Rule{
		Name:     t.CleanName(),
		Commands: []string{shellJoin(args...)},
		Phony:    true,
		Help:     fmt.Sprintf("Removes the outputs of %s.", t.Name),
	}
}

func sudo(dir string, args ...string) string {
	if !isWritable(dir) {
		args = append([]string{"sudo"}, args...)
	}
	return shellJoin(args...)
}

func (t *Target) installRules() []gen.Rule {
	if t.InstallDir == "" {
		return nil
	}
	installed := filepath.Join(t.InstallDir, filepath.Base(t.Path))
	return []gen.Rule{
		{
			Name: t.InstallName(),
			Deps: []string{t.Path},
			Commands: []string{
				sudo(t.InstallDir, "mkdir", "-p", t.InstallDir),
				sudo(t.InstallDir, "cp", t.Path, installed),
			},
			Phony: true,
			Help:  fmt.Sprintf("Installs %s to %s.", t.Name, t.InstallDir),
		},
		{
			Name: t.UninstallName(),
			Commands: []string{
				sudo(t.InstallDir, "rm", "-f", installed),
				gen.IgnoreErrors(sudo(t.InstallDir, "rmdir", "--ignore-fail-on-non-empty", t.InstallDir)),
			},
			Phony: true,
			Help:  fmt.Sprintf("Removes %s from %s.", t.Name, t.InstallDir),
		},
	}
}

// Rules synthesizes every rule of the target: one compile rule per source, the
// link rule, the friendly alias, the per-target clean rule and, when an install
// directory is set, install and uninstall.
func (t *Target) Rules(reg LibraryRegistry) []gen.Rule {
	var rules []gen.Rule
	if t.Kind != KindInstall {
		for _, src := range t.sortedSources() {
			rules = append(rules, t.compileRule(src, t.Sources[src]))
		}
		rules = append(rules, t.linkRule(reg))
		if t.hasAlias() {
			rules = append(rules, gen.Rule{
				Name:  t.AliasName(),
				Deps:  []string{t.Path},
				Phony: true,
				Help:  fmt.Sprintf("Builds %s %s.", t.Kind, t.Name),
			})
		}
		rules = append(rules, t.cleanRule())
	}
	rules = append(rules, t.installRules()...)
	return rules
}

func shellJoin(args ...string) string {
	return shellescape.QuoteCommand(args)
}
