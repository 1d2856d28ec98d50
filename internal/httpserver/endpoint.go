package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type endpointRoute struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// endpoint is a named group of API routes.
type endpoint interface {
	Name() string
	Routes() []endpointRoute
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		for _, route := range ep.Routes() {
			s.debugf("register %s %s %s", ep.Name(), route.Method, route.Path)
			r.Method(route.Method, route.Path, route.Handler)
		}
	}
}
