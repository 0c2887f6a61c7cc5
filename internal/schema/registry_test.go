package schema

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
)

const employeeSchema = `{
	"entity_name": "employee",
	"fields": [
		{"name": "EMPLOYEE_ID", "display_name": "Employee ID", "type": "string", "required": true, "aliases": ["emp_id", "staff_id"]},
		{"name": "FIRST_NAME", "type": "string", "required": true},
		{"name": "EMAIL", "type": "email", "required": false}
	]
}`

func writeSchema(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func newTestRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	r, err := NewRegistry(dir, logger)
	require.NoError(t, err)
	return r
}

func TestRegistry_LoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "employee.json", employeeSchema)

	r := newTestRegistry(t, dir)

	s, err := r.Get("employee")
	require.NoError(t, err)
	assert.Equal(t, "employee", s.EntityName)
	assert.Len(t, s.Fields, 3)
	assert.NotEmpty(t, s.Version)
	assert.Equal(t, []string{"EMPLOYEE_ID", "FIRST_NAME"}, s.RequiredFields())
}

func TestRegistry_GetUnknownEntity(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())

	_, err := r.Get("payroll")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrSchemaNotFound))
}

func TestRegistry_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "employee.json", employeeSchema)
	writeSchema(t, dir, "broken.json", `{"entity_name": ""}`)
	writeSchema(t, dir, "notjson.txt", "ignore me")

	r := newTestRegistry(t, dir)
	assert.Equal(t, []string{"employee"}, r.List())
}

func TestRegistry_RejectsDuplicateFieldNames(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "dup.json", `{
		"entity_name": "dup",
		"fields": [
			{"name": "EMAIL", "type": "email"},
			{"name": "EMAIL", "type": "string"}
		]
	}`)

	r := newTestRegistry(t, dir)
	_, err := r.Get("dup")
	assert.Error(t, err)
}

func TestRegistry_ReloadBumpsVersionAndFiresHooks(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "employee.json", employeeSchema)

	r := newTestRegistry(t, dir)
	before, err := r.Get("employee")
	require.NoError(t, err)

	var invalidated []string
	r.OnInvalidate(func(entity string) {
		invalidated = append(invalidated, entity)
	})

	// Unchanged reload fires nothing.
	require.NoError(t, r.Reload())
	assert.Empty(t, invalidated)

	// Changed file bumps the version and fires the hook.
	writeSchema(t, dir, "employee.json", employeeSchema+"\n")
	require.NoError(t, r.Reload())

	after, err := r.Get("employee")
	require.NoError(t, err)
	assert.NotEqual(t, before.Version, after.Version)
	assert.Equal(t, []string{"employee"}, invalidated)
}

func TestRegistry_ReloadDetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "employee.json", employeeSchema)

	r := newTestRegistry(t, dir)

	var invalidated []string
	r.OnInvalidate(func(entity string) {
		invalidated = append(invalidated, entity)
	})

	require.NoError(t, os.Remove(filepath.Join(dir, "employee.json")))
	require.NoError(t, r.Reload())

	_, err := r.Get("employee")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrSchemaNotFound))
	assert.Equal(t, []string{"employee"}, invalidated)
}

func TestRegistry_MissingDirIsNotFatal(t *testing.T) {
	r := newTestRegistry(t, filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Empty(t, r.List())
}
