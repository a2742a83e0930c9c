package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"facturapos/backend/internal/store"
)

var (
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errTooManyRequests  = errors.New("too many requests")
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Money fields are compared as numbers by the gte/gt rules.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decodeJSON reads the body into dest and runs its validate tags. Every
// failure is reported as store.ErrValidation.
func (a *API) decodeJSON(r *http.Request, dest any) error {
	return a.decodeAndValidate(r.Body, dest)
}

// decodeForm accepts application/x-www-form-urlencoded bodies as well as
// JSON. Form values are re-encoded as a JSON object of strings so both paths
// share the same field names, unknown-field check and lenient number types.
func (a *API) decodeForm(r *http.Request, dest any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		return a.decodeJSON(r, dest)
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: invalid form: %v", store.ErrValidation, err)
	}
	fields := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: invalid form: %v", store.ErrValidation, err)
	}
	return a.decodeAndValidate(bytes.NewReader(body), dest)
}

func (a *API) decodeAndValidate(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: request body too large", store.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON: %v", store.ErrValidation, err)
	}
	if err := a.validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fieldPath(fe), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

// fieldPath drops the top-level struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func pathID(r *http.Request) (int64, error) {
	// Ids below 1 parse; lookups then 404 and writes are no-ops.
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", store.ErrValidation, chi.URLParam(r, "id"))
	}
	return id, nil
}

// statusFor maps store errors for lookups and catalog writes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicateNumber):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// saleStatusFor keeps every domain failure of a sale on 400, the status the
// POS frontend checks for.
func saleStatusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusBadRequest
	default:
		return statusFor(err)
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the logs.
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
