// Package web serves the estimate form, the map and table result page and
// a small JSON API.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Estimator runs one submission.
type Estimator interface {
	Estimate(ctx context.Context, req model.Request) (*model.Estimate, error)
}

// Store is the read side of persistence the API exposes.
type Store interface {
	LatestListings(ctx context.Context) (*store.ListingSet, error)
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]model.Submission, error)
}

// Defaults pre-fill the form and bound its rent inputs.
type Defaults struct {
	Address     model.Address
	HourlyWage  float64
	SpeedMPH    float64
	Mode        model.TravelMode
	Policy      model.Policy
	MinRent     int
	MaxRent     int
	RentFloor   int
	RentCeiling int
	TopN        int
}

// Options configures a Server.
type Options struct {
	Defaults       Defaults
	CORSOrigins    []string
	RequestTimeout time.Duration
	// MapboxToken, when set, switches the result map to Mapbox tiles.
	MapboxToken string
}

// Server holds the handlers' dependencies.
type Server struct {
	est   Estimator
	store Store
	opts  Options
	pages *template.Template
}

// NewServer parses the page templates and returns a Server.
func NewServer(est Estimator, st Store, opts Options) (*Server, error) {
	pages, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "web: parse templates")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{est: est, store: st, opts: opts, pages: pages}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleForm)
	r.Post("/estimate", s.handleEstimateForm)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/estimate", s.handleEstimateAPI)
		r.Get("/listings", s.handleListings)
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/submissions/{id}", s.handleGetSubmission)
	})

	return r
}
