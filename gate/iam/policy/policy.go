// Package policy holds the IAM-style policy document model and the trust
// policy evaluation used during role assumption. Full resource policy
// evaluation for data-plane requests lives with the gateway's authorizer;
// the STS core only decides whether a principal may assume a role.
package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Effect represents the policy evaluation result
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// PolicyDocument represents an IAM policy document
type PolicyDocument struct {
	// Version of the policy language (e.g., "2012-10-17")
	Version string `json:"Version"`

	// Id is an optional policy identifier
	Id string `json:"Id,omitempty"`

	// Statement contains the policy statements
	Statement []Statement `json:"Statement"`
}

// Statement represents a single policy statement
type Statement struct {
	// Sid is an optional statement identifier
	Sid string `json:"Sid,omitempty"`

	// Effect specifies whether to Allow or Deny
	Effect string `json:"Effect"`

	// Principal specifies who the statement applies to. In trust policies
	// this is either "*" or a map such as {"Federated": "issuer"} or
	// {"AWS": "arn:..."}.
	Principal interface{} `json:"Principal,omitempty"`

	// Action specifies the actions this statement applies to
	Action []string `json:"Action"`

	// Resource specifies the resources this statement applies to
	Resource []string `json:"Resource,omitempty"`

	// Condition specifies conditions for when this statement applies
	Condition map[string]map[string]interface{} `json:"Condition,omitempty"`
}

// EvaluationContext provides context for trust policy evaluation
type EvaluationContext struct {
	// Principal making the request
	Principal string `json:"principal"`

	// Action being requested (e.g., "sts:AssumeRoleWithWebIdentity")
	Action string `json:"action"`

	// Resource being accessed (the role ARN for trust policies)
	Resource string `json:"resource"`

	// RequestContext contains condition keys and their request values
	RequestContext map[string]interface{} `json:"requestContext,omitempty"`
}

// ValidateTrustPolicyDocument performs structural validation of a trust
// policy document before it is stored on a role.
func ValidateTrustPolicyDocument(doc *PolicyDocument) error {
	if doc == nil {
		return fmt.Errorf("trust policy document cannot be nil")
	}

	if doc.Version == "" {
		return fmt.Errorf("trust policy version is required")
	}

	if len(doc.Statement) == 0 {
		return fmt.Errorf("trust policy must contain at least one statement")
	}

	for i, stmt := range doc.Statement {
		if stmt.Effect != string(EffectAllow) && stmt.Effect != string(EffectDeny) {
			return fmt.Errorf("statement %d: invalid effect %q", i, stmt.Effect)
		}
		if len(stmt.Action) == 0 {
			return fmt.Errorf("statement %d: action is required", i)
		}
		if stmt.Principal == nil {
			return fmt.Errorf("statement %d: principal is required in a trust policy", i)
		}
	}

	return nil
}

// EvaluateTrustPolicy decides whether a trust policy permits the evaluation
// context. An explicit Deny statement wins over any Allow; with no matching
// Allow the result is Deny.
func EvaluateTrustPolicy(doc *PolicyDocument, evalCtx *EvaluationContext) Effect {
	if doc == nil || evalCtx == nil {
		return EffectDeny
	}

	allowed := false
	for _, stmt := range doc.Statement {
		if !statementMatches(&stmt, evalCtx) {
			continue
		}
		if stmt.Effect == string(EffectDeny) {
			return EffectDeny
		}
		allowed = true
	}

	if allowed {
		return EffectAllow
	}
	return EffectDeny
}

func statementMatches(stmt *Statement, evalCtx *EvaluationContext) bool {
	actionMatches := false
	for _, action := range stmt.Action {
		if action == "*" || WildcardMatch(action, evalCtx.Action) {
			actionMatches = true
			break
		}
	}
	if !actionMatches {
		return false
	}

	if !principalMatches(stmt.Principal, evalCtx) {
		return false
	}

	if len(stmt.Condition) > 0 && !evaluateConditions(stmt.Condition, evalCtx) {
		return false
	}

	return true
}

// principalMatches checks the statement's Principal against the evaluation
// context. Federated principals match the token's federated provider key,
// AWS principals match the caller's principal ARN.
func principalMatches(principal interface{}, evalCtx *EvaluationContext) bool {
	switch p := principal.(type) {
	case string:
		return p == "*"
	case map[string]interface{}:
		if federated, ok := p["Federated"]; ok {
			if provider, exists := evalCtx.RequestContext[CtxFederatedProvider]; exists {
				if providerStr, ok := provider.(string); ok && matchesPrincipalValue(federated, providerStr) {
					return true
				}
			}
		}
		if aws, ok := p["AWS"]; ok {
			if matchesPrincipalValue(aws, evalCtx.Principal) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchesPrincipalValue(declared interface{}, actual string) bool {
	switch v := declared.(type) {
	case string:
		return v == "*" || WildcardMatch(v, actual)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && (s == "*" || WildcardMatch(s, actual)) {
				return true
			}
		}
	}
	return false
}

// evaluateConditions evaluates a statement's condition block. Every
// condition operator and every key inside it must be satisfied.
func evaluateConditions(conditions map[string]map[string]interface{}, evalCtx *EvaluationContext) bool {
	for operator, block := range conditions {
		switch operator {
		case "StringEquals":
			if !evaluateStringCondition(block, evalCtx, true, false) {
				return false
			}
		case "StringNotEquals":
			if !evaluateStringCondition(block, evalCtx, false, false) {
				return false
			}
		case "StringLike":
			if !evaluateStringCondition(block, evalCtx, true, true) {
				return false
			}
		case "Bool":
			if !evaluateBoolCondition(block, evalCtx) {
				return false
			}
		default:
			// Unknown condition operator: fail closed
			return false
		}
	}
	return true
}

func evaluateStringCondition(block map[string]interface{}, evalCtx *EvaluationContext, shouldMatch bool, useWildcard bool) bool {
	for conditionKey, conditionValue := range block {
		contextValue, exists := evalCtx.RequestContext[conditionKey]
		if !exists {
			if shouldMatch {
				return false
			}
			continue
		}

		contextStrings := toStringSlice(contextValue)
		expectedStrings := toStringSlice(conditionValue)

		conditionMet := false
		for _, expected := range expectedStrings {
			for _, actual := range contextStrings {
				if useWildcard {
					if WildcardMatch(expected, actual) {
						conditionMet = true
						break
					}
				} else if expected == actual {
					conditionMet = true
					break
				}
			}
			if conditionMet {
				break
			}
		}

		if shouldMatch && !conditionMet {
			return false
		}
		if !shouldMatch && conditionMet {
			return false
		}
	}
	return true
}

func evaluateBoolCondition(block map[string]interface{}, evalCtx *EvaluationContext) bool {
	for conditionKey, conditionValue := range block {
		expected := toBool(conditionValue)

		contextValue, exists := evalCtx.RequestContext[conditionKey]
		if !exists {
			// Absent context value is treated as false
			if expected {
				return false
			}
			continue
		}

		if toBool(contextValue) != expected {
			return false
		}
	}
	return true
}

func toStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			result = append(result, fmt.Sprintf("%v", item))
		}
		return result
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

func toBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.ToLower(v))
		return err == nil && b
	default:
		return false
	}
}
