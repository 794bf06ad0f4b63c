package common

// BearerPrefix is the scheme prefix expected on Authorization headers.
const BearerPrefix = "Bearer "

// DefaultRoles are attached to access tokens when the identity store
// does not provide any.
var DefaultRoles = []string{"user"}
