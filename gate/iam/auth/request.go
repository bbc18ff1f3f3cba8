// Package auth implements the pluggable authentication engine chain that
// resolves an inbound request to an identity. Engines are evaluated in
// registration order under per-engine control modes; the web token engine
// handles federated identity tokens.
package auth

import "github.com/reefgate/reefgate/gate/iam/providers"

// Request is the transport-agnostic view of an inbound call that the
// authentication chain evaluates. The HTTP layer builds one per request;
// engines only read it.
type Request struct {
	params map[string]string

	// Caller is the pre-authenticated local principal, when an upstream
	// authenticator (e.g. signature verification) already resolved one.
	Caller *Identity
}

// NewRequest creates a request over the given parameter set.
func NewRequest(params map[string]string) *Request {
	if params == nil {
		params = make(map[string]string)
	}
	return &Request{params: params}
}

// WithCaller attaches a pre-authenticated caller identity.
func (r *Request) WithCaller(caller *Identity) *Request {
	r.Caller = caller
	return r
}

// Param returns the named request parameter, or "" when absent.
func (r *Request) Param(name string) string {
	return r.params[name]
}

// Kind classifies how an identity was established.
type Kind string

const (
	KindWebIdentity Kind = "WebIdentity"
	KindIAMUser     Kind = "IAMUser"
	KindAssumedRole Kind = "AssumedRole"
)

// Identity is the resolved principal for a single request. It is created per
// request and discarded when the request completes; it is never persisted.
type Identity struct {
	// Principal is the principal descriptor (an ARN for local users and
	// assumed roles, issuer#subject for federated identities).
	Principal string

	// Kind records how the identity was established.
	Kind Kind

	// Provider is the identity provider that produced the identity, when
	// federated.
	Provider string

	// Claims are the verified token claims behind a federated identity.
	Claims *providers.TokenClaims
}
