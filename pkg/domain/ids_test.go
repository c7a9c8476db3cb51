package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "immersion/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs must be non-empty, bounded and drawn from a safe alphabet"
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseConventionID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts short legacy ids", func(t *testing.T) {
		id, err := ParseConventionID("C1")
		require.NoError(t, err)
		assert.Equal(t, ConventionID("C1"), id)
	})

	t.Run("accepts generated UUIDs", func(t *testing.T) {
		raw := uuid.NewString()
		id, err := ParseEventID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, id.String())
	})
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE conventions;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b", true},
		{"Whitespace only", "   ", true},

		{"Uppercase UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Underscored id", "agency_paris_01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgencyID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	for _, input := range []string{"", "in valid", strings.Repeat("x", 65)} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errConvention := ParseConventionID(input)
			_, errAgency := ParseAgencyID(input)
			_, errEvent := ParseEventID(input)

			require.Error(t, errConvention)
			require.Error(t, errAgency)
			require.Error(t, errEvent)
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range AllRoles {
		parsed, err := ParseRole(string(role))
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}

	_, err := ParseRole("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseRole("admin")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	assert.True(t, RoleEstablishmentRepresentative.IsSignatory())
	assert.False(t, RoleValidator.IsSignatory())
}
