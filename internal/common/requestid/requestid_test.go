package requestid

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name          string
		customID      string
		expectUUID    bool
		expectPattern string
	}{
		{
			name:       "empty custom ID returns UUID",
			customID:   "",
			expectUUID: true,
		},
		{
			name:          "simple alphanumeric custom ID",
			customID:      "my-request",
			expectPattern: `^[a-f0-9]{5}-my-request$`,
		},
		{
			name:          "custom ID with special characters",
			customID:      "my@request#123!",
			expectPattern: `^[a-f0-9]{5}-myrequest123$`,
		},
		{
			name:          "custom ID with spaces",
			customID:      "my request 123",
			expectPattern: `^[a-f0-9]{5}-my-request-123$`,
		},
		{
			name:       "only special characters returns UUID",
			customID:   "@#$%^&*()",
			expectUUID: true,
		},
		{
			name:          "leading and trailing hyphens removed",
			customID:      "---my-request---",
			expectPattern: `^[a-f0-9]{5}-my-request$`,
		},
		{
			name:     "very long custom ID is truncated",
			customID: strings.Repeat("a", 100),
			// 5 char prefix + 1 hyphen + 30 char custom = 36 total
			expectPattern: `^[a-f0-9]{5}-a{30}$`,
		},
		{
			name:          "mixed case preserved",
			customID:      "MyRequest-123",
			expectPattern: `^[a-f0-9]{5}-MyRequest-123$`,
		},
		{
			name:          "consecutive hyphens collapsed",
			customID:      "test---triple",
			expectPattern: `^[a-f0-9]{5}-test-triple$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Generate(tt.customID)

			assert.LessOrEqual(t, len(result), MaxRequestIDLength)

			if tt.expectUUID {
				uuidPattern := regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
				assert.True(t, uuidPattern.MatchString(result),
					"Expected UUID format, got: %s", result)
			} else {
				assert.Regexp(t, tt.expectPattern, result)
			}
		})
	}
}

func TestGenerateUniqueness(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := Generate("test-request")
		require.False(t, seen[id], "Generated duplicate request ID: %s", id)
		seen[id] = true
	}
}

func TestGenerateFormat(t *testing.T) {
	result := Generate("my-test-request")

	parts := strings.SplitN(result, "-", 2)
	require.Len(t, parts, 2)

	assert.Len(t, parts[0], PrefixLength)
	assert.Regexp(t, `^[a-f0-9]{5}$`, parts[0])
	assert.Equal(t, "my-test-request", parts[1])
}

func TestRandomPrefix(t *testing.T) {
	prefix := randomPrefix()

	assert.Len(t, prefix, PrefixLength)
	assert.Regexp(t, `^[a-f0-9]{5}$`, prefix)
}
