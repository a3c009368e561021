package builder

import (
	"os"
	"strings"
	"testing"

	"github.com/qobs-build/mgen/internal/builder/gen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProject lays out a small library + executable project and returns a
// builder rooted at it
func newProject(t *testing.T) (*Builder, string) {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.cpp":          `#include "a.hpp"`,
		"src/b.cpp":          "#include \"b.hpp\"\n#include <vector>",
		"src/main.cpp":       `#include "a.hpp"`,
		"include/a.hpp":      `#include "common.hpp"`,
		"include/b.hpp":      ``,
		"include/common.hpp": ``,
	})
	captureMessages(t)

	b, err := NewBuilder(Options{
		Root:               root,
		SourceDirs:         []string{"src"},
		ProjectIncludeDirs: []string{"include"},
		Cflags:             []string{},
		Lflags:             []string{},
	})
	require.NoError(t, err)
	return b, root
}

func TestNewBuilderDefaults(t *testing.T) {
	b, root := newProject(t)
	assert.Equal(t, root, b.Root())
	assert.Equal(t, in(root, "build"), b.BuildDir())

	_, err := NewBuilder(Options{Root: root, SourceDirs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, ErrNotFound)

	// nil flags fall back to the compiler defaults
	b, err = NewBuilder(Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, GCC.DefaultFlags, b.cflags)
	assert.Equal(t, GCC.DefaultFlags, b.lflags)
}

func TestSetBuildDir(t *testing.T) {
	b, root := newProject(t)

	require.NoError(t, b.SetBuildDir("out"))
	assert.Equal(t, in(root, "out"), b.BuildDir())

	err := b.SetBuildDir(root)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, ErrBuildDirExists)
	assert.Equal(t, in(root, "out"), b.BuildDir(), "a rejected build directory is not applied")

	fresh := in(t.TempDir(), "fresh")
	require.NoError(t, b.SetBuildDir(fresh))
	assert.Equal(t, fresh, b.BuildDir())
}

func TestLibraryAndExecutable(t *testing.T) {
	b, root := newProject(t)

	lib, err := b.AddLibrary("libL.so", TargetOptions{Sources: []string{"a.cpp", "b.cpp"}, Cflags: []string{"-O3"}})
	require.NoError(t, err)
	exe, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp"}, Libraries: []string{"libL.so", "pthread"}})
	require.NoError(t, err)

	assert.Equal(t, in(root, "build", "libL.so"), lib.Path)
	assert.Equal(t, KindLibrary, lib.Kind)
	assert.Contains(t, lib.Cflags, "-fPIC")
	assert.Contains(t, lib.Lflags, "-shared")
	assert.NotContains(t, exe.Cflags, "-fPIC")
	assert.Equal(t, in(root, "build", "libL.so"), b.Libraries()["libL.so"])

	assert.Equal(t, HeaderSet{in(root, "include", "a.hpp"), in(root, "include", "common.hpp")}, lib.Sources[in(root, "src", "a.cpp")])
	assert.Equal(t, HeaderSet{in(root, "include", "b.hpp")}, lib.Sources[in(root, "src", "b.cpp")])

	rules, err := b.Rules()
	require.NoError(t, err)

	link := ruleByName(t, rules, exe.Path)
	assert.Contains(t, link.Deps, lib.Path)
	cmd := link.Commands[len(link.Commands)-1]
	assert.Contains(t, cmd, lib.Path)
	assert.Contains(t, cmd, "-lpthread")
	assert.NotContains(t, cmd, "-llibL.so")

	aObj := ruleByName(t, rules, lib.ObjectPath(in(root, "src", "a.cpp")))
	assert.Equal(t, []string{in(root, "src", "a.cpp"), in(root, "include", "a.hpp"), in(root, "include", "common.hpp")}, aObj.Deps)

	release := ruleByName(t, rules, "release")
	assert.Equal(t, []string{lib.Path, exe.Path}, release.Deps)
	assert.Empty(t, ruleByName(t, rules, "debug").Deps)
	assert.Equal(t, []string{"release", "debug"}, ruleByName(t, rules, "all").Deps)
	assert.Equal(t, "all", rules[0].Name)

	clean := ruleByName(t, rules, "clean")
	assert.Equal(t, []string{"rm -rf " + in(root, "build")}, clean.Commands)

	seen := make(map[string]bool)
	for _, r := range rules {
		assert.False(t, seen[r.Name], "duplicate rule %s", r.Name)
		seen[r.Name] = true
	}
}

func TestSharedObjects(t *testing.T) {
	b, _ := newProject(t)

	one, err := b.AddExecutable("one", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)
	two, err := b.AddExecutable("two", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)
	three, err := b.AddExecutable("three", TargetOptions{Sources: []string{"main.cpp"}, Cflags: []string{"-DTHREE"}})
	require.NoError(t, err)

	src := one.sortedSources()[0]
	assert.Equal(t, one.ObjectPath(src), two.ObjectPath(src))
	assert.NotEqual(t, one.ObjectPath(src), three.ObjectPath(src))

	rules, err := b.Rules()
	require.NoError(t, err)
	ruleByName(t, rules, one.ObjectPath(src))
	ruleByName(t, rules, three.ObjectPath(src))
}

func TestReorderedFlagsDoNotCollide(t *testing.T) {
	t.Run("cflags", func(t *testing.T) {
		b, _ := newProject(t)
		one, err := b.AddExecutable("one", TargetOptions{Sources: []string{"main.cpp"}, Cflags: []string{"-DA", "-DB"}})
		require.NoError(t, err)
		two, err := b.AddExecutable("two", TargetOptions{Sources: []string{"main.cpp"}, Cflags: []string{"-DB", "-DA"}})
		require.NoError(t, err)

		rules, err := b.Rules()
		require.NoError(t, err)
		src := one.sortedSources()[0]
		ruleByName(t, rules, one.ObjectPath(src))
		ruleByName(t, rules, two.ObjectPath(src))
	})

	t.Run("debug library and executable", func(t *testing.T) {
		b, _ := newProject(t)
		_, err := b.AddLibrary("libL.so", TargetOptions{Sources: []string{"a.cpp"}, Debug: true})
		require.NoError(t, err)
		_, err = b.AddExecutable("E", TargetOptions{Sources: []string{"a.cpp", "main.cpp"}, Cflags: []string{"-fPIC"}, Debug: true})
		require.NoError(t, err)

		_, err = b.Rules()
		assert.NoError(t, err)
	})

	t.Run("include directories", func(t *testing.T) {
		b, root := newProject(t)
		writeTree(t, root, map[string]string{"x/.keep": "", "y/.keep": ""})
		xy, err := b.AddExecutable("xy", TargetOptions{Sources: []string{"main.cpp"}, IncludeDirs: []string{"x", "y"}})
		require.NoError(t, err)
		yx, err := b.AddExecutable("yx", TargetOptions{Sources: []string{"main.cpp"}, IncludeDirs: []string{"y", "x"}})
		require.NoError(t, err)

		src := xy.sortedSources()[0]
		assert.NotEqual(t, xy.ObjectPath(src), yx.ObjectPath(src))
		_, err = b.Rules()
		assert.NoError(t, err)
	})
}

func TestReadableObjectNames(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.cpp": ""})
	captureMessages(t)

	b, err := NewBuilder(Options{Root: root, Cflags: []string{"-O2"}, ReadableObjectNames: true})
	require.NoError(t, err)
	exe, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)

	obj := exe.ObjectPath(in(root, "main.cpp"))
	assert.True(t, strings.HasPrefix(obj, in(root, "build", "objs", "main.g++_-O2.")), obj)
}

func TestDeclareErrors(t *testing.T) {
	b, _ := newProject(t)

	_, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp", "fake.cpp"}})
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "fake.cpp")

	_, err = b.AddExecutable("E", TargetOptions{})
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = b.AddExecutable("", TargetOptions{Sources: []string{"main.cpp"}})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = b.AddInstall("include/missing.hpp", "/usr/include")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.AddInstall("include/a.hpp", "")
	assert.ErrorIs(t, err, ErrConfig)

	// failed declarations leave nothing behind
	rules, err := b.Rules()
	require.NoError(t, err)
	assert.Empty(t, ruleByName(t, rules, "release").Deps)
}

func TestGlobSources(t *testing.T) {
	b, root := newProject(t)

	exe, err := b.AddExecutable("E", TargetOptions{Sources: []string{"*.cpp"}})
	require.NoError(t, err)
	assert.Equal(t, []string{in(root, "src", "a.cpp"), in(root, "src", "b.cpp"), in(root, "src", "main.cpp")}, exe.sortedSources())
}

func TestDuplicateRules(t *testing.T) {
	t.Run("target named after a bookkeeping rule", func(t *testing.T) {
		b, _ := newProject(t)
		_, err := b.AddExecutable("clean", TargetOptions{Sources: []string{"main.cpp"}})
		require.NoError(t, err)

		_, err = b.Rules()
		assert.ErrorIs(t, err, ErrDuplicateRule)
	})

	t.Run("same target declared twice with different sources", func(t *testing.T) {
		b, _ := newProject(t)
		_, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp"}})
		require.NoError(t, err)
		_, err = b.AddExecutable("E", TargetOptions{Sources: []string{"a.cpp"}})
		require.NoError(t, err)

		_, err = b.Rules()
		assert.ErrorIs(t, err, ErrDuplicateRule)
	})
}

func TestDebugTargets(t *testing.T) {
	b, _ := newProject(t)

	rel, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)
	dbg, err := b.AddExecutable("E-debug", TargetOptions{Sources: []string{"main.cpp"}, Debug: true})
	require.NoError(t, err)
	assert.Contains(t, dbg.Cflags, "-g")

	rules, err := b.Rules()
	require.NoError(t, err)
	assert.Equal(t, []string{rel.Path}, ruleByName(t, rules, "release").Deps)
	assert.Equal(t, []string{dbg.Path}, ruleByName(t, rules, "debug").Deps)
}

func TestInstallRules(t *testing.T) {
	prev := isWritable
	t.Cleanup(func() { isWritable = prev })
	isWritable = func(dir string) bool { return !strings.HasPrefix(dir, "/usr") }

	b, root := newProject(t)
	lib, err := b.AddLibrary("libL.so", TargetOptions{Sources: []string{"a.cpp"}, InstallDir: "/usr/local/lib"})
	require.NoError(t, err)
	hdr, err := b.AddInstall("include/a.hpp", "dist/include")
	require.NoError(t, err)
	assert.Equal(t, KindInstall, hdr.Kind)

	rules, err := b.Rules()
	require.NoError(t, err)

	install := ruleByName(t, rules, "install")
	assert.Equal(t, []string{"install_libL.so", "install_include/a.hpp"}, install.Deps)
	uninstall := ruleByName(t, rules, "uninstall")
	assert.Equal(t, []string{"uninstall_libL.so", "uninstall_include/a.hpp"}, uninstall.Deps)

	libInstall := ruleByName(t, rules, "install_libL.so")
	assert.Equal(t, []string{lib.Path}, libInstall.Deps)
	assert.Equal(t, "sudo cp "+lib.Path+" /usr/local/lib/libL.so", libInstall.Commands[1])

	hdrInstall := ruleByName(t, rules, "install_include/a.hpp")
	assert.Equal(t, "cp "+in(root, "include", "a.hpp")+" "+in(root, "dist", "include", "a.hpp"), hdrInstall.Commands[1])

	hdrUninstall := ruleByName(t, rules, "uninstall_include/a.hpp")
	assert.True(t, strings.HasPrefix(hdrUninstall.Commands[1], "-rmdir"))

	// plain installs never get build rules
	for _, r := range rules {
		assert.NotEqual(t, "clean_include/a.hpp", r.Name)
	}
}

func TestInstallSameBaseName(t *testing.T) {
	b, root := newProject(t)
	writeTree(t, root, map[string]string{"include/detail/a.hpp": ""})

	_, err := b.AddInstall("include/a.hpp", "dist/include")
	require.NoError(t, err)
	_, err = b.AddInstall(in(root, "include", "detail", "a.hpp"), "dist/include/detail")
	require.NoError(t, err)

	rules, err := b.Rules()
	require.NoError(t, err)
	ruleByName(t, rules, "install_include/a.hpp")
	ruleByName(t, rules, "install_include/detail/a.hpp")
}

func TestHelpRule(t *testing.T) {
	b, _ := newProject(t)
	_, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)

	rules, err := b.Rules()
	require.NoError(t, err)

	help := rules[len(rules)-1]
	assert.Equal(t, "help", help.Name)
	assert.True(t, help.Phony)

	out := strings.Join(help.Commands, "\n")
	for _, name := range []string{"all", "release", "debug", "E", "clean_E", "clean", "install", "uninstall", "help"} {
		assert.Contains(t, out, "'  "+name+": ", name)
	}
}

func TestGenerate(t *testing.T) {
	b, root := newProject(t)
	_, err := b.AddExecutable("E", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)

	out, err := b.Generate(gen.Makefile{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Automatically generated by mgen."))
	assert.Contains(t, out, "\nall: release debug\n")

	path, err := b.Write("", gen.Ninja{})
	require.NoError(t, err)
	assert.Equal(t, in(root, "build.ninja"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default all")

	// an invalid project writes nothing
	_, err = b.AddExecutable("clean", TargetOptions{Sources: []string{"main.cpp"}})
	require.NoError(t, err)
	_, err = b.Write("Makefile", gen.Makefile{})
	assert.ErrorIs(t, err, ErrDuplicateRule)
	assert.NoFileExists(t, in(root, "Makefile"))
}

func TestCreateGenerator(t *testing.T) {
	assert.Equal(t, "Makefile", CreateGenerator(GeneratorMake).BuildFile())
	assert.Equal(t, "build.ninja", CreateGenerator(GeneratorNinja).BuildFile())
	assert.Panics(t, func() { CreateGenerator("vs2022") })
}
