package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// Arguments are validated and normalised invocation arguments. Paths are
// relative to the project root and lists are already split.
type Arguments struct {
	values map[string]string
	lists  map[string][]string
}

// String returns a scalar argument.
func (a Arguments) String(name string) string {
	return a.values[name]
}

// List returns a split options or paths argument.
func (a Arguments) List(name string) []string {
	return a.lists[name]
}

// Has reports whether the argument was given or defaulted.
func (a Arguments) Has(name string) bool {
	_, scalar := a.values[name]
	_, list := a.lists[name]
	return scalar || list
}

// Int returns an integer argument, or 0.
func (a Arguments) Int(name string) int {
	n, _ := strconv.Atoi(a.values[name])
	return n
}

// Bool returns a boolean argument, or false.
func (a Arguments) Bool(name string) bool {
	b, _ := strconv.ParseBool(a.values[name])
	return b
}

// Validator checks invocation arguments against a tool's declared
// parameters and confines every path to the project root.
type Validator struct {
	root     string
	patterns sync.Map // pattern -> *regexp.Regexp
}

// NewValidator creates a validator for the project rooted at root.
// The root is made absolute and has its symlinks resolved.
func NewValidator(root string) (*Validator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "resolve project root", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "resolve project root", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "resolve project root", err)
	}
	if !info.IsDir() {
		return nil, domain.Errorf(domain.KindConfiguration, "project root %s is not a directory", resolved)
	}
	return &Validator{root: resolved}, nil
}

// Root returns the resolved project root.
func (v *Validator) Root() string {
	return v.root
}

// Validate checks args against def. A rejection is a ValidationRejected
// error whose message is meant for the model.
func (v *Validator) Validate(def *domain.ToolDefinition, args map[string]string) (Arguments, error) {
	out := Arguments{values: make(map[string]string), lists: make(map[string][]string)}

	for name := range args {
		if _, ok := def.Parameter(name); !ok {
			return out, reject("unknown argument %q for %s; accepted arguments: %s",
				name, def.Name, strings.Join(parameterNames(def), ", "))
		}
	}

	for _, p := range def.Parameters {
		raw := args[p.Name]
		given := raw != ""
		if !given {
			if p.Default != "" {
				raw, given = p.Default, true
			} else if p.Required {
				return out, reject("missing required argument %q for %s", p.Name, def.Name)
			}
		}
		if !given {
			continue
		}
		if strings.ContainsRune(raw, 0) {
			return out, reject("argument %q contains a NUL byte", p.Name)
		}
		if err := v.validateOne(p, raw, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (v *Validator) validateOne(p domain.ParameterSpec, raw string, out *Arguments) error {
	switch p.Type {
	case domain.ParamString:
		if err := v.matchPattern(p, raw); err != nil {
			return err
		}
		out.values[p.Name] = raw

	case domain.ParamInteger:
		if _, err := strconv.Atoi(strings.TrimSpace(raw)); err != nil {
			return reject("argument %q must be an integer, got %q", p.Name, raw)
		}
		if err := v.matchPattern(p, strings.TrimSpace(raw)); err != nil {
			return err
		}
		out.values[p.Name] = strings.TrimSpace(raw)

	case domain.ParamBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return reject("argument %q must be true or false, got %q", p.Name, raw)
		}
		out.values[p.Name] = strconv.FormatBool(b)

	case domain.ParamEnum:
		value := strings.TrimSpace(raw)
		if !slices.Contains(p.AllowedValues, value) {
			return reject("invalid value %q for %q; valid values: %s",
				value, p.Name, strings.Join(p.AllowedValues, ", "))
		}
		out.values[p.Name] = value

	case domain.ParamOptions:
		opts := splitList(raw)
		for _, opt := range opts {
			if !slices.Contains(p.AllowedValues, opt) {
				return reject("unrecognized option %q for %q; valid options: %s",
					opt, p.Name, strings.Join(p.AllowedValues, ", "))
			}
		}
		out.lists[p.Name] = opts

	case domain.ParamPath:
		rel, err := v.Contain(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		out.values[p.Name] = rel

	case domain.ParamPaths:
		parts := splitList(raw)
		if len(parts) == 0 {
			return reject("argument %q needs at least one path", p.Name)
		}
		rels := make([]string, 0, len(parts))
		for _, part := range parts {
			rel, err := v.Contain(part)
			if err != nil {
				return err
			}
			rels = append(rels, rel)
		}
		out.lists[p.Name] = rels
	}
	return nil
}

func (v *Validator) matchPattern(p domain.ParameterSpec, value string) error {
	if p.Pattern == "" {
		return nil
	}
	re, ok := v.patterns.Load(p.Pattern)
	if !ok {
		compiled, err := regexp.Compile(anchor(p.Pattern))
		if err != nil {
			return reject("argument %q has an invalid pattern", p.Name)
		}
		re, _ = v.patterns.LoadOrStore(p.Pattern, compiled)
	}
	if !re.(*regexp.Regexp).MatchString(value) {
		return reject("argument %q does not match the pattern %s", p.Name, p.Pattern)
	}
	return nil
}

// Contain resolves path against the project root and returns it relative
// to the root. Paths escaping the root, directly or through a symlink,
// are rejected. A result starting with "-" is prefixed with "./" so that
// it cannot be read as a flag.
func (v *Validator) Contain(path string) (string, error) {
	if path == "" {
		return "", reject("empty path")
	}

	var joined string
	if filepath.IsAbs(path) {
		joined = filepath.Clean(path)
	} else {
		joined = filepath.Join(v.root, path)
	}
	if !within(v.root, joined) {
		return "", v.outside(path)
	}

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", reject("cannot resolve path %q: %v", path, err)
	}
	if !within(v.root, resolved) {
		return "", v.outside(path)
	}

	rel, err := filepath.Rel(v.root, joined)
	if err != nil {
		return "", v.outside(path)
	}
	if strings.HasPrefix(rel, "-") {
		rel = "." + string(filepath.Separator) + rel
	}
	return rel, nil
}

func (v *Validator) outside(path string) error {
	return reject("path %q resolves outside the project root %s; use a path relative to it", path, v.root)
}

// resolveExisting evaluates symlinks in the longest existing prefix of
// path and appends the remainder unchanged.
func resolveExisting(path string) (string, error) {
	var rest []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parameterNames(def *domain.ToolDefinition) []string {
	names := make([]string, len(def.Parameters))
	for i, p := range def.Parameters {
		names[i] = p.Name
	}
	return names
}

func reject(format string, args ...any) error {
	return domain.NewError(domain.KindValidationRejected, fmt.Sprintf(format, args...), nil)
}
