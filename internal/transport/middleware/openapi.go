package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apperrors "github.com/frahmantamala/payconfirm/internal"
)

// LoadOpenAPI parses and validates an OpenAPI 3 document.
func LoadOpenAPI(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// OpenAPIValidator rejects requests that do not match the document. Routes
// the document does not describe, and the listed operation ids, pass through
// untouched.
func OpenAPIValidator(doc *openapi3.T, logger *slog.Logger, skipOperations ...string) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	skip := make(map[string]bool, len(skipOperations))
	for _, id := range skipOperations {
		skip[id] = true
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil || (route.Operation != nil && skip[route.Operation.OperationID]) {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				logger.Warn("request failed schema validation",
					"path", r.URL.Path,
					"request_id", apperrors.RequestIDFromContext(r.Context()),
					"error", err)
				writeAppError(w, apperrors.NewValidationError(validationMessage(err), apperrors.ErrCodeInvalidPayload))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func validationMessage(err error) string {
	switch e := err.(type) {
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			return fmt.Sprintf("invalid parameter %q", e.Parameter.Name)
		}
		if e.RequestBody != nil {
			if e.Err != nil {
				return "invalid request body: " + e.Err.Error()
			}
			return "invalid request body"
		}
		return e.Error()
	default:
		return "request does not match the API schema"
	}
}

func writeAppError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
