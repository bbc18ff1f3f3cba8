package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func federatedTrustPolicy(provider string, conditions map[string]map[string]interface{}) *PolicyDocument {
	return &PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: map[string]interface{}{"Federated": provider},
				Action:    []string{"sts:AssumeRoleWithWebIdentity"},
				Condition: conditions,
			},
		},
	}
}

func TestEvaluateTrustPolicyFederated(t *testing.T) {
	doc := federatedTrustPolicy("https://idp.example.com", nil)

	evalCtx := &EvaluationContext{
		Principal: "web-identity-user",
		Action:    "sts:AssumeRoleWithWebIdentity",
		Resource:  "arn:aws:iam::123:role/Test",
		RequestContext: map[string]interface{}{
			CtxFederatedProvider: "https://idp.example.com",
		},
	}

	assert.Equal(t, EffectAllow, EvaluateTrustPolicy(doc, evalCtx))

	evalCtx.RequestContext[CtxFederatedProvider] = "https://other-idp.example.com"
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))
}

func TestEvaluateTrustPolicyActionMismatch(t *testing.T) {
	doc := federatedTrustPolicy("https://idp.example.com", nil)

	evalCtx := &EvaluationContext{
		Action: "sts:AssumeRole",
		RequestContext: map[string]interface{}{
			CtxFederatedProvider: "https://idp.example.com",
		},
	}

	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))
}

func TestEvaluateTrustPolicyExternalIdCondition(t *testing.T) {
	doc := &PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: map[string]interface{}{"AWS": "arn:aws:iam::123:user/deploy"},
				Action:    []string{"sts:AssumeRole"},
				Condition: map[string]map[string]interface{}{
					"StringEquals": {CtxExternalId: "E1"},
				},
			},
		},
	}

	evalCtx := &EvaluationContext{
		Principal: "arn:aws:iam::123:user/deploy",
		Action:    "sts:AssumeRole",
		RequestContext: map[string]interface{}{
			CtxExternalId: "E1",
		},
	}
	assert.Equal(t, EffectAllow, EvaluateTrustPolicy(doc, evalCtx))

	evalCtx.RequestContext[CtxExternalId] = "E2"
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))

	delete(evalCtx.RequestContext, CtxExternalId)
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))
}

func TestEvaluateTrustPolicyMFACondition(t *testing.T) {
	doc := &PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: map[string]interface{}{"AWS": "*"},
				Action:    []string{"sts:AssumeRole"},
				Condition: map[string]map[string]interface{}{
					"Bool": {CtxMFAPresent: "true"},
				},
			},
		},
	}

	evalCtx := &EvaluationContext{
		Principal:      "arn:aws:iam::123:user/alice",
		Action:         "sts:AssumeRole",
		RequestContext: map[string]interface{}{CtxMFAPresent: true},
	}
	assert.Equal(t, EffectAllow, EvaluateTrustPolicy(doc, evalCtx))

	evalCtx.RequestContext[CtxMFAPresent] = false
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))

	delete(evalCtx.RequestContext, CtxMFAPresent)
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))
}

func TestEvaluateTrustPolicyExplicitDenyWins(t *testing.T) {
	doc := &PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: "*",
				Action:    []string{"*"},
			},
			{
				Effect:    "Deny",
				Principal: "*",
				Action:    []string{"sts:AssumeRoleWithWebIdentity"},
			},
		},
	}

	evalCtx := &EvaluationContext{Action: "sts:AssumeRoleWithWebIdentity"}
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))

	evalCtx.Action = "sts:AssumeRole"
	assert.Equal(t, EffectAllow, EvaluateTrustPolicy(doc, evalCtx))
}

func TestEvaluateTrustPolicyUnknownConditionFailsClosed(t *testing.T) {
	doc := federatedTrustPolicy("https://idp.example.com", map[string]map[string]interface{}{
		"NumericLessThan": {"some:Key": "5"},
	})

	evalCtx := &EvaluationContext{
		Action: "sts:AssumeRoleWithWebIdentity",
		RequestContext: map[string]interface{}{
			CtxFederatedProvider: "https://idp.example.com",
			"some:Key":           "3",
		},
	}
	assert.Equal(t, EffectDeny, EvaluateTrustPolicy(doc, evalCtx))
}

func TestValidateTrustPolicyDocument(t *testing.T) {
	valid := federatedTrustPolicy("https://idp.example.com", nil)
	assert.NoError(t, ValidateTrustPolicyDocument(valid))

	assert.Error(t, ValidateTrustPolicyDocument(nil))
	assert.Error(t, ValidateTrustPolicyDocument(&PolicyDocument{Version: "2012-10-17"}))
	assert.Error(t, ValidateTrustPolicyDocument(&PolicyDocument{
		Version:   "2012-10-17",
		Statement: []Statement{{Effect: "Maybe", Action: []string{"*"}, Principal: "*"}},
	}))
	assert.Error(t, ValidateTrustPolicyDocument(&PolicyDocument{
		Version:   "2012-10-17",
		Statement: []Statement{{Effect: "Allow", Action: []string{"*"}}},
	}))
}

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"*", "anything", true},
		{"sts:*", "sts:AssumeRole", true},
		{"sts:*", "iam:CreateRole", false},
		{"repo:org/*:ref:refs/heads/main", "repo:org/app:ref:refs/heads/main", true},
		{"s3:Get?bject", "s3:GetObject", true},
		{"S3:GETOBJECT", "s3:getobject", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"", "", true},
		{"", "x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WildcardMatch(tt.pattern, tt.value), "pattern=%q value=%q", tt.pattern, tt.value)
	}
}
