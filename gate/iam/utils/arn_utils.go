// Package utils provides ARN parsing and session-name validation helpers
// shared by the STS and IAM packages.
package utils

import "strings"

const (
	arnPrefix = "arn:"

	iamService = ":iam::"
	stsService = ":sts::"

	roleMarker        = "role/"
	assumedRoleMarker = "assumed-role/"
)

// sessionNameMinLength and sessionNameMaxLength bound RoleSessionName per the
// AWS STS parameter constraints.
const (
	sessionNameMinLength = 2
	sessionNameMaxLength = 64
)

// SplitRoleArn splits an IAM role ARN of the form
// arn:PARTITION:iam::ACCOUNT:role/NAME (ACCOUNT may be empty) into its parts.
// The role name keeps any path components after "role/".
func SplitRoleArn(roleArn string) (partition, account, roleName string, ok bool) {
	if !strings.HasPrefix(roleArn, arnPrefix) {
		return "", "", "", false
	}
	rest := roleArn[len(arnPrefix):]
	idx := strings.Index(rest, iamService)
	if idx == -1 {
		return "", "", "", false
	}
	partition = rest[:idx]
	rest = rest[idx+len(iamService):]

	roleIdx := strings.Index(rest, roleMarker)
	if roleIdx == -1 {
		return "", "", "", false
	}
	account = strings.TrimSuffix(rest[:roleIdx], ":")
	roleName = rest[roleIdx+len(roleMarker):]
	if partition == "" || roleName == "" {
		return "", "", "", false
	}
	return partition, account, roleName, true
}

// GenerateAssumedRoleArn builds the STS assumed-role ARN for a role and
// session name, preserving the role ARN's partition and account:
// arn:PARTITION:sts::ACCOUNT:assumed-role/NAME/SESSION.
// An unparseable role ARN yields an uppercased placeholder role name so the
// failure is visible in logs and responses rather than silently dropped.
func GenerateAssumedRoleArn(roleArn, sessionName string) string {
	partition, account, roleName, ok := SplitRoleArn(roleArn)
	if !ok {
		return arnPrefix + "aws" + stsService + assumedRoleMarker + strings.ToUpper(roleArn) + "/" + sessionName
	}
	var b strings.Builder
	b.WriteString(arnPrefix)
	b.WriteString(partition)
	b.WriteString(stsService)
	if account != "" {
		b.WriteString(account)
		b.WriteString(":")
	}
	b.WriteString(assumedRoleMarker)
	b.WriteString(roleName)
	b.WriteString("/")
	b.WriteString(sessionName)
	return b.String()
}

// ExtractRoleNameFromArn extracts the role name (including any path) from an
// IAM role ARN. Returns an empty string for anything that is not a role ARN.
func ExtractRoleNameFromArn(roleArn string) string {
	_, _, roleName, ok := SplitRoleArn(roleArn)
	if !ok {
		return ""
	}
	return roleName
}

// ExtractRoleNameFromPrincipal extracts the role name from either an STS
// assumed-role ARN (arn:PARTITION:sts::ACCOUNT:assumed-role/NAME/SESSION) or
// an IAM role ARN.
func ExtractRoleNameFromPrincipal(principal string) string {
	if strings.HasPrefix(principal, arnPrefix) {
		rest := principal[len(arnPrefix):]
		if idx := strings.Index(rest, stsService); idx != -1 {
			rest = rest[idx+len(stsService):]
			if marker := strings.Index(rest, assumedRoleMarker); marker != -1 {
				after := rest[marker+len(assumedRoleMarker):]
				if slash := strings.Index(after, "/"); slash != -1 {
					return after[:slash]
				}
				return after
			}
		}
	}
	return ExtractRoleNameFromArn(principal)
}

// IsValidSessionName reports whether a RoleSessionName satisfies the STS
// constraints: 2-64 characters from [A-Za-z0-9_=,.@-].
func IsValidSessionName(name string) bool {
	if len(name) < sessionNameMinLength || len(name) > sessionNameMaxLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '=' || c == ',' || c == '.' || c == '@' || c == '-':
		default:
			return false
		}
	}
	return true
}
