package server

import "github.com/gorilla/mux"

// Registrar is a common interface for all HTTP service registrars.
// auth wraps handlers that need an authenticated caller.
type Registrar interface {
	Register(r *mux.Router, auth mux.MiddlewareFunc)
}
