// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/maruel/jsondb/internal/server/dto"
	"github.com/maruel/jsondb/internal/server/handlers"
	"github.com/maruel/jsondb/internal/server/ratelimit"
	"github.com/maruel/jsondb/internal/server/reqctx"
)

// Wrap wraps a handler function to work as an http.Handler.
//
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct. Struct fields
// tagged with `path:"name"` are filled from the route pattern and those tagged
// with `query:"name"` from the query string. *In must implement
// dto.Validatable. When *Out implements dto.StatusCoder its status code is
// used instead of 200.
//
// Example:
//
//	type GetUserRequest struct {
//	    ID string `path:"id"`
//	}
//
//	func (h *Handler) GetUser(ctx context.Context, req *GetUserRequest) (*Response, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *handlers.Config, tiers *ratelimit.Tiers) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r, cfg)

		if tier := tiers.Match(r.Method, r.URL.Path); tier != nil {
			var ok bool
			if w, ok = checkRateLimit(ctx, w, tier); !ok {
				return
			}
		}

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input, cfg) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)

		if err := PtrIn(input).Validate(); err != nil {
			writeError(ctx, w, err, http.StatusBadRequest)
			return
		}

		output, err := fn(ctx, PtrIn(input))
		if err != nil {
			writeError(ctx, w, err, http.StatusInternalServerError)
			return
		}
		writeJSONResponse(ctx, w, output)
	})
}

// addRequestMetadataToContext adds client IP and User-Agent to the context.
// The client IP set by withClientIP is kept.
func addRequestMetadataToContext(ctx context.Context, r *http.Request, cfg *handlers.Config) context.Context {
	if reqctx.ClientIP(ctx) == "" {
		ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r, cfg != nil && cfg.TrustProxyHeaders))
	}
	return reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
}

// checkRateLimit consumes a token for the client and wraps the response
// writer to report the quota. Returns false when the request was rejected.
func checkRateLimit(ctx context.Context, w http.ResponseWriter, tier *ratelimit.Tier) (http.ResponseWriter, bool) {
	res := tier.Limiter.Allow(ratelimit.Key(tier, reqctx.ClientIP(ctx)))
	rw := ratelimit.NewResponseWriter(w, res)
	if !res.Allowed {
		slog.WarnContext(ctx, "Rate limited", "tier", tier.Name, "ip", reqctx.ClientIP(ctx))
		apiErr := dto.RateLimitExceeded(int(res.RetryAfter.Seconds()))
		writeErrorResponseWithCode(rw, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
		return rw, false
	}
	return rw, true
}

// readAndDecodeBody reads the request body with size limit and decodes JSON
// into input. An empty body leaves input untouched. Returns false if an error
// occurred and was written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, cfg *handlers.Config) bool {
	if cfg != nil && cfg.MaxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(ctx, w, dto.PayloadTooLarge(maxBytesErr.Limit), 0)
			return false
		}
		writeError(ctx, w, dto.BadRequest("failed to read request body").Wrap(err), 0)
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()
	if err := d.Decode(input); err != nil {
		writeError(ctx, w, dto.InvalidJSON(err), 0)
		return false
	}
	return true
}

// populatePathParams fills struct fields tagged with `path:"name"` from the
// matched route pattern.
func populatePathParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" || field.Type.Kind() != reflect.String {
			continue
		}
		if v := r.PathValue(tag); v != "" {
			elem.Field(i).SetString(v)
		}
	}
}

// populateQueryParams fills struct fields tagged with `query:"name"` from the
// query string. Values that do not parse are ignored.
func populateQueryParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		v := query.Get(tag)
		if v == "" {
			continue
		}
		fv := elem.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fv.SetString(v)
		case reflect.Int, reflect.Int64:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				fv.SetInt(n)
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(v); err == nil {
				fv.SetBool(b)
			}
		default:
			if u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler); ok {
				_ = u.UnmarshalText([]byte(v))
			}
		}
	}
}

func structElem(input any) (reflect.Value, bool) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return val.Elem(), true
}

// writeError writes err as the error envelope. Errors that do not carry a
// status use fallback, or 500 when fallback is 0.
func writeError(ctx context.Context, w http.ResponseWriter, err error, fallback int) {
	statusCode := fallback
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	errorCode := dto.ErrorCodeInternal
	if statusCode < 500 {
		errorCode = dto.ErrorCodeValidationFailed
	}
	var details map[string]any

	var ewsErr dto.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		errorCode = ewsErr.Code()
		details = ewsErr.Details()
	}

	msg := err.Error()
	if statusCode >= 500 {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", errorCode)
		var apiErr *dto.APIError
		if errors.As(err, &apiErr) {
			// Do not leak wrapped internal errors to clients.
			msg = apiErr.Message()
		} else {
			msg = "internal error"
		}
	} else {
		slog.WarnContext(ctx, "Request rejected", "err", err, "statusCode", statusCode, "code", errorCode)
	}
	writeErrorResponseWithCode(w, statusCode, errorCode, msg, details)
}

// writeJSONResponse writes output with 200 OK or the status it reports.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out) {
	status := http.StatusOK
	if sc, ok := any(output).(dto.StatusCoder); ok {
		status = sc.StatusCode()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code dto.ErrorCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: code, Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
