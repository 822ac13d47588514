package coregrpc

import "crypto/tls"

// Well-known AuthContext property names, matching the ASP.NET Core gRPC
// server's conventional claim-type-ish keys for TLS peer identity.
const (
	authPropertySANDNSName = "x509_subject_alternative_name"
	authPropertyCommonName = "x509_common_name"
)

// AuthContext describes the identity, if any, the transport's TLS layer
// established for this call's peer. The core never validates or inspects
// certificate chains itself — *tls.ConnectionState is an opaque boundary
// value handed to it already terminated by the transport; AuthContext only
// projects the two conventional identity fields spec §4.2 calls for.
type AuthContext struct {
	authenticated bool
	// peerIdentityProperty names whichever property (SAN or CN) supplied
	// the identity, or "" if unauthenticated.
	peerIdentityProperty string
	properties           map[string][]string
}

// unauthenticatedAuthContext is the shared singleton returned whenever a
// call has no peer certificate.
var unauthenticatedAuthContext = &AuthContext{properties: map[string][]string{}}

// IsAuthenticated reports whether a peer certificate was presented.
func (a *AuthContext) IsAuthenticated() bool {
	return a != nil && a.authenticated
}

// PeerIdentityProperty returns the property name that supplied the peer's
// identity (one of authPropertySANDNSName or authPropertyCommonName), or ""
// if unauthenticated.
func (a *AuthContext) PeerIdentityProperty() string {
	if a == nil {
		return ""
	}
	return a.peerIdentityProperty
}

// PeerIdentity returns the first value of PeerIdentityProperty, or "" if
// unauthenticated.
func (a *AuthContext) PeerIdentity() string {
	if a == nil {
		return ""
	}
	vs := a.properties[a.peerIdentityProperty]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Properties returns every identity property extracted from the peer
// certificate (SAN DNS names under authPropertySANDNSName, common name
// under authPropertyCommonName).
func (a *AuthContext) Properties() map[string][]string {
	if a == nil {
		return nil
	}
	return a.properties
}

// newAuthContext builds an AuthContext from a connection's TLS state. A nil
// state, or one with no peer certificates, yields the unauthenticated
// singleton. The peer identity property prefers SAN DNS names over the
// common name, matching the teacher ecosystem's ASP.NET Core convention.
func newAuthContext(tlsState *tls.ConnectionState) *AuthContext {
	if tlsState == nil || len(tlsState.PeerCertificates) == 0 {
		return unauthenticatedAuthContext
	}
	cert := tlsState.PeerCertificates[0]
	props := make(map[string][]string)
	if len(cert.DNSNames) > 0 {
		props[authPropertySANDNSName] = append([]string(nil), cert.DNSNames...)
	}
	if cert.Subject.CommonName != "" {
		props[authPropertyCommonName] = []string{cert.Subject.CommonName}
	}

	identityProperty := ""
	switch {
	case len(props[authPropertySANDNSName]) > 0:
		identityProperty = authPropertySANDNSName
	case len(props[authPropertyCommonName]) > 0:
		identityProperty = authPropertyCommonName
	default:
		return &AuthContext{authenticated: true, properties: props}
	}
	return &AuthContext{
		authenticated:         true,
		peerIdentityProperty:  identityProperty,
		properties:            props,
	}
}
