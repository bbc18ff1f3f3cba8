package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAssumedRoleArn(t *testing.T) {
	tests := []struct {
		name        string
		roleArn     string
		sessionName string
		expected    string
	}{
		{
			name:        "standard role ARN with account",
			roleArn:     "arn:aws:iam::123456789012:role/MyRole",
			sessionName: "MySession",
			expected:    "arn:aws:sts::123456789012:assumed-role/MyRole/MySession",
		},
		{
			name:        "legacy role ARN without account",
			roleArn:     "arn:aws:iam::role/MyRole",
			sessionName: "MySession",
			expected:    "arn:aws:sts::assumed-role/MyRole/MySession",
		},
		{
			name:        "role ARN with path",
			roleArn:     "arn:aws:iam::role/path/to/MyRole",
			sessionName: "MySession",
			expected:    "arn:aws:sts::assumed-role/path/to/MyRole/MySession",
		},
		{
			name:        "non-aws partition",
			roleArn:     "arn:example:iam::123:role/Test",
			sessionName: "alice-session",
			expected:    "arn:example:sts::123:assumed-role/Test/alice-session",
		},
		{
			name:        "invalid role ARN",
			roleArn:     "invalid-arn",
			sessionName: "MySession",
			expected:    "arn:aws:sts::assumed-role/INVALID-ARN/MySession",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateAssumedRoleArn(tt.roleArn, tt.sessionName))
		})
	}
}

func TestExtractRoleNameFromArn(t *testing.T) {
	assert.Equal(t, "MyRole", ExtractRoleNameFromArn("arn:aws:iam::123456789012:role/MyRole"))
	assert.Equal(t, "MyRole", ExtractRoleNameFromArn("arn:aws:iam::role/MyRole"))
	assert.Equal(t, "path/to/MyRole", ExtractRoleNameFromArn("arn:aws:iam::role/path/to/MyRole"))
	assert.Equal(t, "Test", ExtractRoleNameFromArn("arn:example:iam::123:role/Test"))
	assert.Equal(t, "", ExtractRoleNameFromArn("arn:aws:s3:::bucket"))
	assert.Equal(t, "", ExtractRoleNameFromArn("not-an-arn"))
	assert.Equal(t, "", ExtractRoleNameFromArn(""))
}

func TestExtractRoleNameFromPrincipal(t *testing.T) {
	assert.Equal(t, "MyRole", ExtractRoleNameFromPrincipal("arn:aws:sts::123456789012:assumed-role/MyRole/session-1"))
	assert.Equal(t, "MyRole", ExtractRoleNameFromPrincipal("arn:aws:sts::assumed-role/MyRole/session-1"))
	assert.Equal(t, "MyRole", ExtractRoleNameFromPrincipal("arn:aws:sts::assumed-role/MyRole"))
	assert.Equal(t, "MyRole", ExtractRoleNameFromPrincipal("arn:aws:iam::123456789012:role/MyRole"))
	assert.Equal(t, "", ExtractRoleNameFromPrincipal("arn:aws:iam::user/alice"))
}

func TestIsValidSessionName(t *testing.T) {
	valid := []string{"ab", "alice-session", "user@example.com", "a_b=c,d.e", "Session-01"}
	for _, name := range valid {
		assert.True(t, IsValidSessionName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"a",
		"has space",
		"slash/name",
		"colon:name",
		string(make([]byte, 65)),
	}
	for _, name := range invalid {
		assert.False(t, IsValidSessionName(name), "expected %q to be invalid", name)
	}
}
