package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pelletier/go-toml/v2"
)

const ConfigFilename = "MGen.toml"

type Config struct {
	Project     ProjectSection           `toml:"project"`
	Compiler    *Compiler                `toml:"compiler"`
	Libraries   map[string]TargetSection `toml:"library"`
	Executables map[string]TargetSection `toml:"executable"`
	Installs    []InstallSection         `toml:"install"`
}

// ProjectSection defines the [project] section
type ProjectSection struct {
	SourceDirs          []string `toml:"source-dirs"`
	IncludeDirs         []string `toml:"include-dirs"`
	ExternalIncludeDirs []string `toml:"external-include-dirs"`
	BuildDir            string   `toml:"build-dir"`
	Cflags              []string `toml:"cflags"`
	Lflags              []string `toml:"lflags"`
	LinkDirs            []string `toml:"link-dirs"`
	ReadableObjectNames bool     `toml:"readable-object-names"`
}

// TargetSection defines a [library.<name>] or [executable.<name>] section
type TargetSection struct {
	Sources     []string `toml:"sources"`
	Links       []string `toml:"links"`
	Cflags      []string `toml:"cflags"`
	IncludeDirs []string `toml:"include-dirs"`
	Lflags      []string `toml:"lflags"`
	LinkDirs    []string `toml:"link-dirs"`
	OutputDir   string   `toml:"output-dir"`
	InstallDir  string   `toml:"install-dir"`
	Debug       bool     `toml:"debug"`
}

// InstallSection defines one [[install]] entry
type InstallSection struct {
	Path       string `toml:"path"`
	InstallDir string `toml:"install-dir"`
}

func (s TargetSection) options() TargetOptions {
	return TargetOptions{
		Sources:     s.Sources,
		Libraries:   s.Links,
		Cflags:      s.Cflags,
		IncludeDirs: s.IncludeDirs,
		Lflags:      s.Lflags,
		LinkDirs:    s.LinkDirs,
		OutputDir:   s.OutputDir,
		InstallDir:  s.InstallDir,
		Debug:       s.Debug,
	}
}

// mergeStructs folds src into dst field by field: slices are appended, bools are
// OR-ed and any other non-zero value replaces the one in dst.
func mergeStructs(dst, src any) error {
	d := reflect.ValueOf(dst)
	if d.Kind() != reflect.Pointer || d.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("merge: destination %T is not a struct pointer", dst)
	}
	d = d.Elem()
	v := reflect.Indirect(reflect.ValueOf(src))
	if v.Type() != d.Type() {
		return fmt.Errorf("merge: cannot merge %s into %s", v.Type(), d.Type())
	}

	for i := range v.NumField() {
		from, to := v.Field(i), d.Field(i)
		if !to.CanSet() || from.IsZero() {
			continue
		}
		switch to.Kind() {
		case reflect.Slice:
			to.Set(reflect.AppendSlice(to, from))
		case reflect.Bool:
			to.SetBool(true)
		default:
			to.Set(from)
		}
	}
	return nil
}

// decodeInto round-trips an already parsed TOML value through the encoder so it
// can be decoded into a typed struct
func decodeInto(v, dst any) error {
	data, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, dst)
}

// compileCondition reports whether key is a boolean expression over env
func compileCondition(key string, env ConfigEnv) (*vm.Program, bool) {
	program, err := expr.Compile(key, expr.Env(env), expr.AsBool())
	return program, err == nil
}

// unmarshalConditional decodes a table into dst. Sub-tables whose key is a boolean
// expression are decoded separately and merged into dst, in key order, when the
// expression holds for env.
func unmarshalConditional[T any](table any, name string, dst *T, env ConfigEnv) error {
	fields, ok := table.(map[string]any)
	if !ok {
		return fmt.Errorf("[%s]: expected a table, got %T", name, table)
	}

	base := make(map[string]any, len(fields))
	conditions := make(map[string]*vm.Program)
	for key, val := range fields {
		if _, isTable := val.(map[string]any); isTable {
			if program, ok := compileCondition(key, env); ok {
				conditions[key] = program
				continue
			}
		}
		base[key] = val
	}

	if err := decodeInto(base, dst); err != nil {
		return fmt.Errorf("[%s]: %w", name, err)
	}

	for _, key := range slices.Sorted(maps.Keys(conditions)) {
		result, err := expr.Run(conditions[key], env)
		if err != nil {
			return fmt.Errorf("[%s.'%s']: %w", name, key, err)
		}
		if matched, _ := result.(bool); !matched {
			continue
		}

		var extra T
		if err := decodeInto(fields[key], &extra); err != nil {
			return fmt.Errorf("[%s.'%s']: %w", name, key, err)
		}
		if err := mergeStructs(dst, extra); err != nil {
			return fmt.Errorf("[%s.'%s']: %w", name, key, err)
		}
	}
	return nil
}

// unmarshalTargets parses a table of named targets, each with its own
// conditional sub-tables
func unmarshalTargets(rawCfg map[string]any, name string, env ConfigEnv) (map[string]TargetSection, error) {
	data, ok := rawCfg[name]
	if !ok {
		return nil, nil
	}
	table, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("[%s]: expected a table, got %T", name, data)
	}

	targets := make(map[string]TargetSection, len(table))
	for targetName, raw := range table {
		var section TargetSection
		if err := unmarshalConditional(raw, name+"."+targetName, &section, env); err != nil {
			return nil, err
		}
		targets[targetName] = section
	}
	return targets, nil
}

var interpolationRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// interpolate replaces every {{ expr }} in s by the value of expr over env
func interpolate(s string, env ConfigEnv) (string, error) {
	var firstErr error
	out := interpolationRegex.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		code := strings.TrimSpace(interpolationRegex.FindStringSubmatch(match)[1])
		program, err := expr.Compile(code, expr.Env(env))
		if err == nil {
			var result any
			if result, err = expr.Run(program, env); err == nil {
				return fmt.Sprint(result)
			}
		}
		firstErr = fmt.Errorf("evaluate %q: %w", code, err)
		return match
	})
	return out, firstErr
}

// interpolateAll rewrites every string reachable from v in place
func interpolateAll(v any, env ConfigEnv) (any, error) {
	var err error
	switch v := v.(type) {
	case string:
		return interpolate(v, env)
	case map[string]any:
		for key := range v {
			if v[key], err = interpolateAll(v[key], env); err != nil {
				return nil, err
			}
		}
	case []any:
		for i := range v {
			if v[i], err = interpolateAll(v[i], env); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	if _, err := interpolateAll(rawConfig, env); err != nil {
		return nil, fmt.Errorf("interpolate %s: %w", ConfigFilename, err)
	}

	cfg := new(Config)

	if data, ok := rawConfig["project"]; ok {
		if err := unmarshalConditional(data, "project", &cfg.Project, env); err != nil {
			return nil, err
		}
	}
	if _, ok := rawConfig["compiler"]; ok {
		compiler := GCC
		compiler.DefaultFlags = slices.Clone(GCC.DefaultFlags)
		if err := decodeInto(rawConfig["compiler"], &compiler); err != nil {
			return nil, fmt.Errorf("[compiler]: %w", err)
		}
		cfg.Compiler = &compiler
	}
	var err error
	if cfg.Libraries, err = unmarshalTargets(rawConfig, "library", env); err != nil {
		return nil, err
	}
	if cfg.Executables, err = unmarshalTargets(rawConfig, "executable", env); err != nil {
		return nil, err
	}
	if data, ok := rawConfig["install"]; ok {
		// arrays of tables can't be marshaled on their own, keep the wrapping table
		var wrapper struct {
			Install []InstallSection `toml:"install"`
		}
		if err := decodeInto(map[string]any{"install": data}, &wrapper); err != nil {
			return nil, fmt.Errorf("[[install]]: %w", err)
		}
		cfg.Installs = wrapper.Install
	}

	return cfg, nil
}

// ParseConfigFromFile parses and validates a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseConfig(bufio.NewReader(f), env)
}

// Options converts the [project] and [compiler] sections into builder options
func (cfg *Config) Options(root string) Options {
	compiler := cfg.Compiler
	if compiler == nil {
		detected := DetectCompiler()
		compiler = &detected
	}
	return Options{
		Root:               root,
		SourceDirs:         cfg.Project.SourceDirs,
		ProjectIncludeDirs: cfg.Project.IncludeDirs,
		IncludeDirs:        cfg.Project.ExternalIncludeDirs,
		BuildDir:           cfg.Project.BuildDir,
		Compiler:           compiler,
		Cflags:             cfg.Project.Cflags,
		Lflags:             cfg.Project.Lflags,
		LinkDirs:           cfg.Project.LinkDirs,

		ReadableObjectNames: cfg.Project.ReadableObjectNames,
	}
}

// Declare declares every target of the config on b: libraries first, then
// executables, each in name order, then install entries in file order.
func (cfg *Config) Declare(b *Builder) error {
	for _, name := range slices.Sorted(maps.Keys(cfg.Libraries)) {
		if _, err := b.AddLibrary(name, cfg.Libraries[name].options()); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Executables)) {
		if _, err := b.AddExecutable(name, cfg.Executables[name].options()); err != nil {
			return err
		}
	}
	for _, inst := range cfg.Installs {
		if _, err := b.AddInstall(inst.Path, inst.InstallDir); err != nil {
			return err
		}
	}
	return nil
}

// NewBuilderInDirectory loads MGen.toml from path and declares all of its targets
func NewBuilderInDirectory(path string) (*Builder, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	cfg, err := ParseConfigFromFile(filepath.Join(path, ConfigFilename), NewConfigEnv())
	if err != nil {
		return nil, err
	}

	b, err := NewBuilder(cfg.Options(path))
	if err != nil {
		return nil, err
	}
	if err := cfg.Declare(b); err != nil {
		return nil, err
	}
	return b, nil
}

//
// expr-lang environment
//

type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
}

func NewConfigEnv() ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
	}
}
