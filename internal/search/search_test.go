package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
)

func setupTestIndex(t *testing.T) *SuggestIndex {
	t.Helper()

	idx, err := NewSuggestIndex(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func employeeSchema() *domain.TargetSchema {
	return &domain.TargetSchema{
		EntityName: "employee",
		Version:    "v1",
		Fields: []domain.SchemaField{
			{
				Name:        "EMPLOYEE_ID",
				DisplayName: "Employee ID",
				Description: "Unique identifier for the employee",
				Type:        domain.FieldTypeString,
				Required:    true,
				Aliases:     []string{"emp_id", "staff_id"},
			},
			{
				Name:        "FIRST_NAME",
				DisplayName: "First Name",
				Type:        domain.FieldTypeString,
			},
			{
				Name:        "HIRE_DATE",
				Description: "The date the employee was hired",
				Type:        domain.FieldTypeDate,
			},
		},
	}
}

func customerSchema() *domain.TargetSchema {
	return &domain.TargetSchema{
		EntityName: "customer",
		Version:    "v1",
		Fields: []domain.SchemaField{
			{Name: "CUSTOMER_ID", Type: domain.FieldTypeString, Required: true},
			{Name: "FIRST_NAME", Type: domain.FieldTypeString},
		},
	}
}

func TestIndexSchemaAndCount(t *testing.T) {
	idx := setupTestIndex(t)

	require.NoError(t, idx.IndexSchema(employeeSchema()))

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestSuggestByFieldName(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))

	suggestions, err := idx.Suggest(context.Background(), SuggestParams{
		Entity: "employee",
		Query:  "employee id",
	})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "EMPLOYEE_ID", suggestions[0].Field)
	assert.True(t, suggestions[0].Required)
	assert.Equal(t, "string", suggestions[0].Type)
}

func TestSuggestByAlias(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))

	suggestions, err := idx.Suggest(context.Background(), SuggestParams{
		Entity: "employee",
		Query:  "staff",
	})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "EMPLOYEE_ID", suggestions[0].Field)
}

func TestSuggestByDescription(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))

	suggestions, err := idx.Suggest(context.Background(), SuggestParams{
		Entity: "employee",
		Query:  "hired",
	})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "HIRE_DATE", suggestions[0].Field)
}

func TestSuggestFiltersByEntity(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))
	require.NoError(t, idx.IndexSchema(customerSchema()))

	suggestions, err := idx.Suggest(context.Background(), SuggestParams{
		Entity: "customer",
		Query:  "first name",
	})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		assert.NotEqual(t, "EMPLOYEE_ID", s.Field)
		assert.NotEqual(t, "HIRE_DATE", s.Field)
	}
}

func TestReindexReplacesEntityDocuments(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))

	// Reload with one field removed.
	smaller := employeeSchema()
	smaller.Fields = smaller.Fields[:2]
	require.NoError(t, idx.IndexSchema(smaller))

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	suggestions, err := idx.Suggest(context.Background(), SuggestParams{
		Entity: "employee",
		Query:  "hire date",
	})
	require.NoError(t, err)
	for _, s := range suggestions {
		assert.NotEqual(t, "HIRE_DATE", s.Field)
	}
}

func TestRemoveEntity(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))
	require.NoError(t, idx.IndexSchema(customerSchema()))

	require.NoError(t, idx.RemoveEntity("employee"))

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestSuggestLimit(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexSchema(employeeSchema()))

	suggestions, err := idx.Suggest(context.Background(), SuggestParams{
		Entity: "employee",
		Query:  "name",
		Limit:  1,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(suggestions), 1)
}

func TestReopenExistingIndex(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewSuggestIndex(Options{DataPath: dir})
	require.NoError(t, err)
	require.NoError(t, idx.IndexSchema(employeeSchema()))
	require.NoError(t, idx.Close())

	reopened, err := NewSuggestIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}
