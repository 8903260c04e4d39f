package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/types"
)

// ValidationMiddleware validates request bodies against an OpenAPI document
type ValidationMiddleware struct {
	doc     *openapi3.T
	router  routers.Router
	logger  *logrus.Logger
	enabled bool
}

// NewValidationMiddleware parses spec and builds the route table. A disabled
// middleware still parses the document so it can be served.
func NewValidationMiddleware(spec []byte, enabled bool, logger *logrus.Logger) (*ValidationMiddleware, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}

	if enabled {
		logger.Info("API validation middleware enabled")
	} else {
		logger.Info("API validation middleware disabled")
	}

	return &ValidationMiddleware{
		doc:     doc,
		router:  router,
		logger:  logger,
		enabled: enabled,
	}, nil
}

// Document returns the parsed OpenAPI document
func (vm *ValidationMiddleware) Document() *openapi3.T {
	return vm.doc
}

// Middleware returns the HTTP middleware function
func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	if !vm.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := vm.validateRequest(r); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeTooLarge(w)
				return
			}
			vm.logger.WithError(err).WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}).Warn("Request validation failed")

			vm.writeValidationError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateRequest validates an HTTP request against the OpenAPI spec.
// Routes missing from the document pass through.
func (vm *ValidationMiddleware) validateRequest(r *http.Request) error {
	route, pathParams, err := vm.router.FindRoute(r)
	if err != nil {
		if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
			return nil
		}
		return fmt.Errorf("route lookup failed: %w", err)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	if len(body) > 0 && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}

	err = openapi3filter.ValidateRequest(r.Context(), input)
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// writeValidationError writes a validation error response
func (vm *ValidationMiddleware) writeValidationError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	detail := parseValidationError(err)

	param, _ := detail.Details["path"].(string)
	if param == "" {
		param, _ = detail.Details["field"].(string)
	}
	response := types.NewErrorResponse(http.StatusBadRequest, "validation_error", detail.Message)
	response.Error.Param = param
	response.Error.Details = detail.Details

	_ = json.NewEncoder(w).Encode(response)
}

// ValidationErrorDetail contains parsed validation error information
type ValidationErrorDetail struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func parseValidationError(err error) *ValidationErrorDetail {
	detail := &ValidationErrorDetail{
		Message: "Request validation failed",
		Details: map[string]interface{}{"error": err.Error()},
	}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.RequestBody != nil {
			detail.Details["field"] = "request body"
		}
		if reqErr.Parameter != nil {
			detail.Details["field"] = reqErr.Parameter.Name
		}
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		detail.Details["path"] = strings.Join(schemaErr.JSONPointer(), ".")
		detail.Details["reason"] = schemaErr.Reason
		switch {
		case strings.Contains(schemaErr.Reason, "required"):
			detail.Message = "Missing required field"
		case strings.Contains(schemaErr.Reason, "value is not one of"):
			detail.Message = "Invalid enum value"
		case strings.Contains(schemaErr.Reason, "must be"):
			detail.Message = "Invalid field type"
		}
	} else if strings.Contains(err.Error(), "request body") {
		detail.Message = "Invalid request body format"
	}

	return detail
}
