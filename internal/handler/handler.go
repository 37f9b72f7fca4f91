// Package handler contains the HTTP handlers of the debugging platform.
//
// WHAT IS A HANDLER?
// Anything with the http.Handler shape:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Each handler struct below owns one area of the API and depends on a small
// interface instead of a concrete service, so tests can drive it with a fake.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, JSON body, session from context)
//  2. Call the service
//  3. Translate the result or domain error into JSON via writeJSON/writeError
//
// Handlers never make security decisions themselves. Rate limits, lockouts
// and the code scan all live in the service layer and arrive here as
// apperror values.
package handler
