package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

func setupValidator(t *testing.T) *Validator {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644))

	v, err := NewValidator(root)
	require.NoError(t, err)
	return v
}

func requireRejected(t *testing.T, err error, contains ...string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, domain.KindValidationRejected, domain.KindOf(err))
	for _, s := range contains {
		assert.Contains(t, err.Error(), s)
	}
}

func TestNewValidator_Errors(t *testing.T) {
	_, err := NewValidator(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewValidator(file)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestValidate_SearchArguments(t *testing.T) {
	v := setupValidator(t)
	def := SearchTool()

	args, err := v.Validate(&def, map[string]string{
		"options": "-i, -n",
		"pattern": "func main",
		"paths":   "src,src/main.go",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"-i", "-n"}, args.List("options"))
	assert.Equal(t, "func main", args.String("pattern"))
	assert.Equal(t, []string{"src", filepath.Join("src", "main.go")}, args.List("paths"))
}

func TestValidate_Defaults(t *testing.T) {
	v := setupValidator(t)
	def := SearchTool()

	args, err := v.Validate(&def, map[string]string{"pattern": "x", "options": ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, args.List("paths"))
	assert.False(t, args.Has("options"))
}

func TestValidate_Rejections(t *testing.T) {
	v := setupValidator(t)
	search := SearchTool()
	patch := PatchTool()
	enum := domain.ToolDefinition{
		Name: "fmt", Kind: domain.ToolKindCLI, Program: "gofmt",
		Parameters: []domain.ParameterSpec{
			{Name: "mode", Type: domain.ParamEnum, AllowedValues: []string{"list", "diff"}},
			{Name: "name", Type: domain.ParamString, Pattern: "[a-z]+"},
		},
	}

	tests := []struct {
		name     string
		def      *domain.ToolDefinition
		args     map[string]string
		contains []string
	}{
		{"unknown option", &search, map[string]string{"pattern": "x", "options": "-i,-z"},
			[]string{`"-z"`, "-i", "-n", "-E"}},
		{"missing required", &search, map[string]string{"options": "-i"},
			[]string{`"pattern"`}},
		{"unknown argument", &search, map[string]string{"pattern": "x", "exec": "rm"},
			[]string{`"exec"`, "options, pattern, paths"}},
		{"nul byte", &search, map[string]string{"pattern": "a\x00b"},
			[]string{"NUL"}},
		{"parent escape", &search, map[string]string{"pattern": "x", "paths": "../etc"},
			[]string{"outside the project root"}},
		{"absolute escape", &search, map[string]string{"pattern": "x", "paths": "/etc/passwd"},
			[]string{"outside the project root"}},
		{"one bad path in list", &search, map[string]string{"pattern": "x", "paths": "src,../../x"},
			[]string{"../../x"}},
		{"non integer", &patch, map[string]string{"patch": "p", "strip": "one"},
			[]string{"integer"}},
		{"integer pattern", &patch, map[string]string{"patch": "p", "strip": "12"},
			[]string{"pattern"}},
		{"non boolean", &patch, map[string]string{"patch": "p", "dry_run": "maybe"},
			[]string{"true or false"}},
		{"enum value", &enum, map[string]string{"mode": "write"},
			[]string{`"write"`, "list, diff"}},
		{"string pattern", &enum, map[string]string{"name": "abc1"},
			[]string{"pattern"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.def, tt.args)
			requireRejected(t, err, tt.contains...)
		})
	}
}

func TestContain(t *testing.T) {
	v := setupValidator(t)

	rel, err := v.Contain(filepath.Join(v.Root(), "src", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("src", "main.go"), rel)

	rel, err = v.Contain("src/../src/new.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("src", "new.go"), rel)

	rel, err = v.Contain("-rf")
	require.NoError(t, err)
	assert.Equal(t, "."+string(filepath.Separator)+"-rf", rel)

	_, err = v.Contain("")
	requireRejected(t, err, "empty path")
}

func TestContain_SymlinkEscape(t *testing.T) {
	v := setupValidator(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(v.Root(), "link")))

	_, err := v.Contain("link/secret")
	requireRejected(t, err, "outside the project root")

	_, err = v.Contain("link/not-yet-created")
	requireRejected(t, err, "outside the project root")

	inner := filepath.Join(v.Root(), "inner")
	require.NoError(t, os.Symlink(filepath.Join(v.Root(), "src"), inner))
	rel, err := v.Contain("inner/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("inner", "main.go"), rel)
}
