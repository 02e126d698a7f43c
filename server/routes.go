// Package server exposes a Labelled Object Store over HTTP.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/lfstore"
	"github.com/ndlib/lfstore/blobcache"
)

// Version is reported on the welcome page. It is set at build time.
var Version = "dev"

// RESTServer holds the configuration for a store REST API server.
//
// Set the public fields and then call Run. Run will listen on the given
// port and handle requests. Do not change any fields after calling Run.
type RESTServer struct {
	// Port number to listen on. defaults to 14100
	PortNumber string

	// Store is the item store being served. Run will panic if it is nil.
	Store *lfstore.Store

	// Cache, if set, is the blob cache the store was opened with. It is only
	// used to report hit and miss counts.
	Cache *blobcache.LRU

	// Validator decodes the API keys presented with requests. If this is
	// nil then every request is treated as coming from an admin.
	Validator TokenDecoder

	// MaxBlobSize limits the size of uploaded blobs, in bytes. 0 means
	// DefaultMaxBlobSize.
	MaxBlobSize int64

	// Registry receives the server metrics. If nil a new registry is made.
	Registry *prometheus.Registry

	server  httpdown.Server // used to close our listening socket
	metrics *Metrics
	blobs   blobFlight
}

// DefaultMaxBlobSize is the upload limit used when none is configured.
const DefaultMaxBlobSize = 64 << 20

// Run initializes the server and then blocks listening for and handling
// http requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting store server version %s", Version)
	if s.PortNumber == "" {
		s.PortNumber = "14100"
	}
	handler := s.Handler()
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{
		StopTimeout: 10 * time.Second,
		KillTimeout: time.Second,
	}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: handler,
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when all the open connections have
// finished and the socket is closed.
func (s *RESTServer) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

// Handler sets up the server and returns its routes. Run calls this; it is
// exported for tests and for embedding the API in another server.
func (s *RESTServer) Handler() http.Handler {
	if s.Store == nil {
		panic("No store given. Store is nil.")
	}
	if s.Validator == nil {
		log.Println("No Validator given")
		s.Validator = NewNobodyDecoder()
	}
	if s.MaxBlobSize <= 0 {
		s.MaxBlobSize = DefaultMaxBlobSize
	}
	if s.Registry == nil {
		s.Registry = prometheus.NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(s.Registry, s.Store, s.Cache)
	}
	s.blobs.Store = s.Store
	return s.addRoutes()
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"POST", "/blob", RoleWrite, s.NewBlobHandler},
		{"GET", "/blob/*id", RoleRead, s.BlobHandler},
		{"HEAD", "/blob/*id", RoleRead, s.BlobHandler},
		{"PUT", "/blob/*id", RoleWrite, s.UpdateBlobHandler},
		{"GET", "/info/*id", RoleMDOnly, s.InfoHandler},
		{"PATCH", "/info/*id", RoleWrite, s.UpdateInfoHandler},
		{"DELETE", "/item/*id", RoleWrite, s.DeleteHandler},
		{"GET", "/folder/*id", RoleRead, s.FolderHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/metrics", RoleUnknown, s.MetricsHandler()},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.metrics.wrap(route.route, s.authzWrapper(route.handler, route.role))))
	}
	return r
}

// MetricsHandler adapts the prometheus handler for the server registry to
// the httprouter three parameter handler.
func (s *RESTServer) MetricsHandler() httprouter.Handle {
	h := promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			w.WriteHeader(500)
			fmt.Fprintln(w, err.Error())
			return
		}

		// is role valid?
		if role < leastRole {
			w.WriteHeader(401)
			fmt.Fprintln(w, "Forbidden")
			return
		}

		// replace any previous username
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				handler(w, r, ps)
				return
			}
		}
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
