// Package handler exposes the coupon operations over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// ScopeCreateCoupon is the API key scope required to create coupons when
// authentication is enabled.
const ScopeCreateCoupon = "create_coupon"

// Applier applies a coupon to a basket.
type Applier interface {
	Apply(ctx context.Context, b coupon.Basket, code string) (coupon.Application, error)
}

// Creator registers new coupons.
type Creator interface {
	Create(ctx context.Context, in coupon.NewCoupon) (coupon.Creation, error)
}

// Finder looks coupons up by code.
type Finder interface {
	FindByCode(ctx context.Context, code string) (coupon.Coupon, bool, error)
	FindAllByCodes(ctx context.Context, codes []string) ([]coupon.Coupon, error)
}

// Handler serves the coupon API.
type Handler struct {
	applier  Applier
	creator  Creator
	finder   Finder
	auth     *auth.Authenticator
	validate *validator.Validate
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthenticator requires a valid API key with ScopeCreateCoupon on the
// create endpoint.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(h *Handler) {
		h.auth = a
	}
}

// New constructs a Handler.
func New(applier Applier, creator Creator, finder Finder, opts ...Option) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	h := &Handler{
		applier:  applier,
		creator:  creator,
		finder:   finder,
		validate: v,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API router. It is meant to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Post("/apply", h.Apply)
	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(RequireAPIKey(h.auth, ScopeCreateCoupon))
		}
		r.Post("/create", h.Create)
	})
	r.Get("/coupons", h.ListCoupons)
	r.Get("/coupons/{code}", h.GetCoupon)
	return r
}
