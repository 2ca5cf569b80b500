package chiserver

import "github.com/go-chi/chi/v5"

// Router defines the contract for registering routes on the Chi router.
type Router interface {
	Register(router chi.Router)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(router chi.Router)

func (f RouterFunc) Register(router chi.Router) {
	f(router)
}
