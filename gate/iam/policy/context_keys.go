package policy

// Condition keys the STS core places into the trust policy evaluation
// context. Trust policy documents reference these in their Condition blocks.
const (
	// CtxFederatedProvider is the identity provider (issuer) that validated
	// the web identity token.
	CtxFederatedProvider = "reef:FederatedProvider"

	// CtxIssuer is the iss claim of the web identity token.
	CtxIssuer = "reef:Issuer"

	// CtxSubject is the sub claim of the web identity token.
	CtxSubject = "reef:Subject"

	// CtxAudience is the aud claim of the web identity token.
	CtxAudience = "reef:Audience"

	// CtxExternalId is the ExternalId parameter supplied on AssumeRole.
	CtxExternalId = "sts:ExternalId"

	// CtxMFAPresent is true when the caller supplied an MFA device serial
	// and token code that passed verification.
	CtxMFAPresent = "aws:MultiFactorAuthPresent"
)
