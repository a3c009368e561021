package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/qobs-build/mgen/internal/builder/gen"
	"github.com/qobs-build/mgen/internal/msg"
)

var (
	errEmptyName       = errors.New("target name must not be empty")
	errEmptyInstallDir = errors.New("install directory must not be empty")
)

const (
	GeneratorMake  = "make"
	GeneratorNinja = "ninja"
)

// Options are the project-wide defaults every target inherits
type Options struct {
	// Root is the directory relative paths are resolved against. Defaults to the
	// working directory.
	Root string
	// SourceDirs are searched, in order, for declared sources. Defaults to Root.
	SourceDirs []string
	// ProjectIncludeDirs hold project headers. They are passed to the compiler and
	// scanned for header dependencies.
	ProjectIncludeDirs []string
	// IncludeDirs are passed to the compiler but never scanned
	IncludeDirs []string
	// BuildDir receives all outputs. Defaults to "build".
	BuildDir string
	// Compiler defaults to GCC
	Compiler *Compiler
	// Cflags and Lflags default to the compiler's default flags when nil
	Cflags   []string
	Lflags   []string
	LinkDirs []string
	// ReadableObjectNames puts the compiler and compile flags in object file names
	ReadableObjectNames bool
}

// TargetOptions are the per-target additions to the global defaults
type TargetOptions struct {
	// Sources may contain doublestar glob patterns
	Sources     []string
	Libraries   []string
	Cflags      []string
	IncludeDirs []string
	Lflags      []string
	LinkDirs    []string
	Compiler    *Compiler
	OutputDir   string
	InstallDir  string
	Debug       bool
}

// Builder owns every declaration of one generation run along with the header
// cache and the library registry it uses. Builders share no state.
type Builder struct {
	root        string
	sourceDirs  []string
	includeDirs []string
	buildDir    string
	compiler    Compiler
	cflags      []string
	lflags      []string
	linkDirs    []string
	readable    bool

	targets   []*Target
	headers   *HeaderResolver
	libraries LibraryRegistry
}

func NewBuilder(opts Options) (*Builder, error) {
	root := opts.Root
	if root == "" {
		var err error
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	msg.Info("using root directory: %s", root)

	sourceDirs := opts.SourceDirs
	if len(sourceDirs) == 0 {
		sourceDirs = []string{"."}
	}
	sourceDirs, err = LocateStrict("project source directory", sourceDirs, []string{root})
	if err != nil {
		return nil, err
	}
	msg.Debug("using project source directories: %v", sourceDirs)

	projectIncludeDirs, err := LocateStrict("project include directory", opts.ProjectIncludeDirs, []string{root})
	if err != nil {
		return nil, err
	}
	msg.Debug("using project include directories: %v", projectIncludeDirs)

	compiler := GCC
	if opts.Compiler != nil {
		compiler = *opts.Compiler
	}

	cflags := opts.Cflags
	if cflags == nil {
		cflags = compiler.DefaultFlags
	}
	lflags := opts.Lflags
	if lflags == nil {
		lflags = compiler.DefaultFlags
	}

	b := &Builder{
		root:        root,
		sourceDirs:  sourceDirs,
		includeDirs: union(rootedAll(root, opts.IncludeDirs), projectIncludeDirs),
		compiler:    compiler,
		cflags:      union(cflags),
		lflags:      union(lflags),
		linkDirs:    union(rootedAll(root, opts.LinkDirs)),
		readable:    opts.ReadableObjectNames,
		headers:     NewHeaderResolver(append(slices.Clone(projectIncludeDirs), sourceDirs...)),
		libraries:   make(LibraryRegistry),
	}

	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}
	if err := b.SetBuildDir(buildDir); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Builder) Root() string     { return b.root }
func (b *Builder) BuildDir() string { return b.buildDir }

// Headers exposes the header resolver shared by all targets of this builder
func (b *Builder) Headers() *HeaderResolver { return b.headers }

// Libraries exposes the registry of libraries declared so far
func (b *Builder) Libraries() LibraryRegistry { return b.libraries }

// SetBuildDir sets the build directory. An absolute directory must not exist
// yet, so that something like `/` can never become the build directory.
func (b *Builder) SetBuildDir(dir string) error {
	if filepath.IsAbs(dir) {
		if exists(dir) {
			return &ConfigError{Op: "set build directory", Path: dir, Err: ErrBuildDirExists}
		}
		b.buildDir = filepath.Clean(dir)
	} else {
		b.buildDir = filepath.Join(b.root, dir)
	}
	msg.Debug("using project build directory: %s", b.buildDir)
	return nil
}

func rooted(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func rootedAll(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = rooted(root, p)
	}
	return out
}

// union concatenates the lists, dropping empty strings and repeats
func union(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if s != "" && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// declare resolves a target against the global defaults. Every source must
// exist now; nothing is deferred to generation.
func (b *Builder) declare(kind Kind, name string, opts TargetOptions) (*Target, error) {
	if name == "" {
		return nil, &ConfigError{Op: "declare " + kind.String(), Err: errEmptyName}
	}
	op := fmt.Sprintf("declare %s %q", kind, name)

	patterns, err := expandGlobs(opts.Sources, b.sourceDirs)
	if err != nil {
		return nil, &ConfigError{Op: op, Err: err}
	}
	sources, err := LocateStrict(op+": source", patterns, b.sourceDirs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, &ConfigError{Op: op, Err: ErrNoSources}
	}

	sourceMap := make(map[string]HeaderSet, len(sources))
	for _, src := range sources {
		sourceMap[src] = b.headers.HeadersOf(src)
	}

	compiler := b.compiler
	if opts.Compiler != nil {
		compiler = *opts.Compiler
	}

	var extraCflags, extraLflags []string
	if opts.Debug {
		extraCflags = append(extraCflags, compiler.Debug)
	}
	if kind == KindLibrary {
		extraCflags = append(extraCflags, compiler.PIC)
		extraLflags = append(extraLflags, compiler.Shared)
	}

	outputDir := b.buildDir
	if opts.OutputDir != "" {
		outputDir = rooted(b.root, opts.OutputDir)
	}
	path, err := filepath.Abs(filepath.Join(outputDir, name))
	if err != nil {
		return nil, &ConfigError{Op: op, Err: err}
	}

	t := &Target{
		Name:        name,
		Path:        path,
		Kind:        kind,
		Sources:     sourceMap,
		Libraries:   union(opts.Libraries),
		Cflags:      union(b.cflags, opts.Cflags, extraCflags),
		IncludeDirs: union(b.includeDirs, rootedAll(b.root, opts.IncludeDirs)),
		Lflags:      union(b.lflags, opts.Lflags, extraLflags),
		LinkDirs:    union(b.linkDirs, rootedAll(b.root, opts.LinkDirs)),
		Compiler:    compiler,
		InstallDir:  rooted(b.root, opts.InstallDir),
		Debug:       opts.Debug,
		objDir:      filepath.Join(b.buildDir, "objs"),

		readableObjects: b.readable,
	}
	b.targets = append(b.targets, t)
	msg.Debug("declared %s %s -> %s", kind, name, path)
	return t, nil
}

// AddExecutable declares an executable built from the given sources
func (b *Builder) AddExecutable(name string, opts TargetOptions) (*Target, error) {
	return b.declare(KindExecutable, name, opts)
}

// AddLibrary declares a shared library and registers it, so that any target
// listing name among its libraries links the artifact by path.
func (b *Builder) AddLibrary(name string, opts TargetOptions) (*Target, error) {
	t, err := b.declare(KindLibrary, name, opts)
	if err != nil {
		return nil, err
	}
	b.libraries.Register(t.Name, t.Path)
	return t, nil
}

// AddInstall declares a plain file that only gets install and uninstall rules.
// The target is named by the file's path relative to the root.
func (b *Builder) AddInstall(path, installDir string) (*Target, error) {
	path = filepath.Clean(rooted(b.root, path))
	if installDir == "" {
		return nil, &ConfigError{Op: "declare install", Path: path, Err: errEmptyInstallDir}
	}
	if !exists(path) {
		return nil, &ConfigError{Op: "declare install", Path: path, Err: ErrNotFound}
	}
	name := filepath.ToSlash(path)
	if rel, err := filepath.Rel(b.root, path); err == nil && filepath.IsLocal(rel) {
		name = filepath.ToSlash(rel)
	}
	t := &Target{
		Name:       name,
		Path:       path,
		Kind:       KindInstall,
		InstallDir: rooted(b.root, installDir),
	}
	b.targets = append(b.targets, t)
	return t, nil
}

// ruleSet keeps rules in insertion order and enforces unique names. Re-adding an
// identical rule is a no-op: that is how targets share object files.
type ruleSet struct {
	rules  []gen.Rule
	byName map[string]int
}

func (s *ruleSet) add(r gen.Rule) error {
	if s.byName == nil {
		s.byName = make(map[string]int)
	}
	if i, ok := s.byName[r.Name]; ok {
		if s.rules[i].Equal(r) {
			return nil
		}
		return &ConfigError{Op: "generate", Path: r.Name, Err: ErrDuplicateRule}
	}
	s.byName[r.Name] = len(s.rules)
	s.rules = append(s.rules, r)
	return nil
}

// Rules merges the rules of every declared target with the bookkeeping rules
// all, release, debug, clean, install, uninstall and help.
func (b *Builder) Rules() ([]gen.Rule, error) {
	var release, debug, installs, uninstalls []string
	for _, t := range b.targets {
		switch {
		case t.Kind == KindInstall:
		case t.Debug:
			debug = append(debug, t.Path)
		default:
			release = append(release, t.Path)
		}
		if t.InstallDir != "" {
			installs = append(installs, t.InstallName())
			uninstalls = append(uninstalls, t.UninstallName())
		}
	}

	var set ruleSet
	bookkeeping := []gen.Rule{
		{Name: "all", Deps: []string{"release", "debug"}, Phony: true, Help: "Builds all targets."},
		{Name: "release", Deps: release, Phony: true, Help: "Builds all release targets."},
		{Name: "debug", Deps: debug, Phony: true, Help: "Builds all debug targets."},
	}
	for _, r := range bookkeeping {
		if err := set.add(r); err != nil {
			return nil, err
		}
	}

	for _, t := range b.targets {
		for _, r := range t.Rules(b.libraries) {
			if err := set.add(r); err != nil {
				return nil, fmt.Errorf("target %s: %w", t.Name, err)
			}
		}
	}

	bookkeeping = []gen.Rule{
		{Name: "clean", Commands: []string{shellJoin("rm", "-rf", b.buildDir)}, Phony: true, Help: "Removes the entire build directory."},
		{Name: "install", Deps: installs, Phony: true, Help: "Runs all install targets."},
		{Name: "uninstall", Deps: uninstalls, Phony: true, Help: "Runs all uninstall targets."},
	}
	for _, r := range bookkeeping {
		if err := set.add(r); err != nil {
			return nil, err
		}
	}

	help := gen.Rule{Name: "help", Phony: true, Help: "Lists the documented targets."}
	for _, r := range append(slices.Clone(set.rules), help) {
		if r.Help != "" {
			help.Commands = append(help.Commands, shellJoin("echo", "  "+r.Name+": "+r.Help))
		}
	}
	if err := set.add(help); err != nil {
		return nil, err
	}

	return set.rules, nil
}

// Generate serializes the complete rule set with g
func (b *Builder) Generate(g gen.Generator) (string, error) {
	rules, err := b.Rules()
	if err != nil {
		return "", err
	}
	return g.Generate(rules), nil
}

// Write generates the build file into filename, relative to the project root.
// An empty filename uses the generator's conventional name.
func (b *Builder) Write(filename string, g gen.Generator) (string, error) {
	if filename == "" {
		filename = g.BuildFile()
	}
	filename = rooted(b.root, filename)

	out, err := b.Generate(g)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filename, []byte(out), 0644); err != nil {
		return "", err
	}
	return filename, nil
}

func CreateGenerator(generator string) gen.Generator {
	switch generator {
	case GeneratorMake:
		return gen.Makefile{}
	case GeneratorNinja:
		return gen.Ninja{}
	default:
		panic("CreateGenerator: unreachable")
	}
}
