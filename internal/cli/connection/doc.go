// Package connection is the timemachine CLI's client for a running
// timemachined bridge.
//
// Responses use the bridge's envelope; non-2xx responses become *APIError
// values carrying the domain error code.
package connection
