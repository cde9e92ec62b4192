package common

// AuthorizationHeaderName carries the operator bearer token on API requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the JWT in the Authorization header.
const BearerPrefix = "Bearer "
