// Package httputil holds the JSON request/response helpers shared by the
// HTTP handlers. Handlers go through these instead of raw http.ResponseWriter
// calls so the error envelope and Content-Type stay uniform across endpoints.
package httputil
