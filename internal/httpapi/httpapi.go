package httpapi

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"facturapos/backend/internal/service"
)

type Options struct {
	AllowedOrigin      string
	PublicDir          string
	RateLimitPerMinute int
	Logger             *slog.Logger
}

type API struct {
	catalog  *service.Catalog
	sales    *service.Sales
	reports  *service.Reports
	opts     Options
	logger   *slog.Logger
	validate *validator.Validate
}

func New(catalog *service.Catalog, sales *service.Sales, reports *service.Reports, opts Options) *API {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		catalog:  catalog,
		sales:    sales,
		reports:  reports,
		opts:     opts,
		logger:   logger,
		validate: newValidator(),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		a.requestLogger,
		middleware.Recoverer,
		a.securityHeaders(),
		a.cors,
		limitBody,
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if a.opts.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(a.opts.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, errTooManyRequests)
				}),
			))
		}

		r.Route("/productos", func(r chi.Router) {
			r.Get("/", a.handleListProducts)
			r.Post("/", a.handleCreateProduct)
			r.Get("/{id}", a.handleGetProduct)
			r.Put("/{id}", a.handleUpdateProduct)
			r.Delete("/{id}", a.handleDeleteProduct)
		})
		r.Route("/clientes", func(r chi.Router) {
			r.Get("/", a.handleListCustomers)
			r.Post("/", a.handleCreateCustomer)
			r.Get("/{id}", a.handleGetCustomer)
			r.Put("/{id}", a.handleUpdateCustomer)
			r.Delete("/{id}", a.handleDeleteCustomer)
		})
		r.Route("/facturas", func(r chi.Router) {
			r.Get("/", a.handleListInvoices)
			r.Post("/", a.handleCreateInvoice)
			r.Get("/{id}", a.handleGetInvoice)
		})
		r.Route("/reportes", func(r chi.Router) {
			r.Get("/ventas-por-fecha", a.handleSalesByDate)
			r.Get("/top-productos", a.handleTopProducts)
		})
	})

	if dir := a.opts.PublicDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			a.logger.Warn("static directory not found, frontend disabled", slog.String("dir", dir))
		}
	}

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}
