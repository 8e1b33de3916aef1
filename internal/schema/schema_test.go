package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaJSONRoundTrip(t *testing.T) {
	original := New("posts", TypeBase, []Field{
		{Name: "title", Type: FieldString, Required: true,
			Constraints: map[string]any{"min_value": float64(3)}},
		{Name: "views", Type: FieldInt32},
	})
	original.ListRule = "auth.table == '_admins'"
	original.AddRule = ""

	b, err := json.Marshal(original)
	require.NoError(t, err)

	var roundTripped Schema
	require.NoError(t, json.Unmarshal(b, &roundTripped))

	assert.Equal(t, original.ID, roundTripped.ID)
	assert.Equal(t, original.Name, roundTripped.Name)
	assert.Equal(t, original.Type, roundTripped.Type)
	assert.Equal(t, original.ListRule, roundTripped.ListRule)
	assert.ElementsMatch(t, original.Fields, roundTripped.Fields)
}

func TestDeriveIDStable(t *testing.T) {
	first := DeriveID("posts")
	second := DeriveID("posts")
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, DeriveID("articles"))
	assert.Contains(t, first, "mt_")
}

func TestNewDropsBuiltinCollisions(t *testing.T) {
	s := New("users", TypeAuth, []Field{
		{Name: "id", Type: FieldString},
		{Name: "nickname", Type: FieldString},
	})

	count := 0
	for _, f := range s.Fields {
		if f.Name == "id" {
			count++
		}
	}
	assert.Equal(t, 1, count, "user-supplied id field must not duplicate the builtin")

	_, found := s.FieldByName("nickname")
	assert.True(t, found)

	_, found = s.FieldByName("email")
	assert.True(t, found, "auth entities get the builtin email field")
}

func TestIsSystem(t *testing.T) {
	assert.True(t, IsSystem("_admins"))
	assert.True(t, IsSystem("_tables"))
	assert.True(t, IsSystem("_settings"))
	assert.False(t, IsSystem("posts"))
}

func TestRuleFor(t *testing.T) {
	s := Schema{
		ListRule:   "list-rule",
		GetRule:    "get-rule",
		AddRule:    "add-rule",
		UpdateRule: "update-rule",
		DeleteRule: "delete-rule",
	}

	assert.Equal(t, "list-rule", s.RuleFor("list"))
	assert.Equal(t, "get-rule", s.RuleFor("get"))
	assert.Equal(t, "add-rule", s.RuleFor("add"))
	assert.Equal(t, "update-rule", s.RuleFor("update"))
	assert.Equal(t, "delete-rule", s.RuleFor("delete"))
	assert.Equal(t, "", s.RuleFor("unknown"))
}
