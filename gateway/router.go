package gateway

import (
	"net/http"

	"github.com/fitpulse/gateway/xhttp/httperror"
	"github.com/fitpulse/gateway/xhttp/marshal"
	"github.com/julienschmidt/httprouter"
)

// proxyMethods are the verbs registered for catch-all proxy routes.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// Router provides route registration for services
type Router interface {
	Handler() http.Handler
	GET(path string, handle http.HandlerFunc)
	POST(path string, handle http.HandlerFunc)
	PUT(path string, handle http.HandlerFunc)
	DELETE(path string, handle http.HandlerFunc)
	// HandleAll registers the handler for all proxyable verbs,
	// used by catch-all routes such as `/api/users/*path`.
	HandleAll(path string, handle http.HandlerFunc)
}

type router struct {
	mux *httprouter.Router
}

// NewRouter returns a new instance of the Router
func NewRouter(notFound http.HandlerFunc) Router {
	mux := httprouter.New()
	mux.NotFound = notFound
	mux.HandleMethodNotAllowed = false
	return &router{mux: mux}
}

func (r *router) Handler() http.Handler {
	return r.mux
}

func (r *router) GET(path string, handle http.HandlerFunc) {
	r.mux.HandlerFunc(http.MethodGet, path, handle)
}

func (r *router) POST(path string, handle http.HandlerFunc) {
	r.mux.HandlerFunc(http.MethodPost, path, handle)
}

func (r *router) PUT(path string, handle http.HandlerFunc) {
	r.mux.HandlerFunc(http.MethodPut, path, handle)
}

func (r *router) DELETE(path string, handle http.HandlerFunc) {
	r.mux.HandlerFunc(http.MethodDelete, path, handle)
}

func (r *router) HandleAll(path string, handle http.HandlerFunc) {
	for _, method := range proxyMethods {
		r.mux.HandlerFunc(method, path, handle)
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	marshal.WriteJSON(w, r, httperror.NotFound("%s", r.URL.Path))
}
