package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/rs/zerolog"

	"github.com/racetiming/pipeline/correlation"
)

// Every JSON body carries the request's correlation id so a support inquiry
// can be matched to its log lines.

type ErrorResponse struct {
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type RequestErrors struct {
	Errors        []string     `json:"errors"`
	FieldErrors   []FieldError `json:"fieldErrors"`
	CorrelationID string       `json:"correlationId"`
}

func (r RequestErrors) WithError(msg string) RequestErrors {
	r.Errors = append(slices.Clone(r.Errors), msg)
	return r
}

func (r RequestErrors) WithFieldError(field, msg string) RequestErrors {
	r.FieldErrors = append(slices.Clone(r.FieldErrors), FieldError{Field: field, Error: msg})
	return r
}

func (r RequestErrors) HasAnyError() bool {
	return len(r.Errors) > 0 || len(r.FieldErrors) > 0
}

type OKResponse struct {
	Response      any    `json:"response"`
	CorrelationID string `json:"correlationId"`
}

func DoOKResponse(ctx context.Context, response any, writer http.ResponseWriter) {
	writeJSON(ctx, writer, http.StatusOK, OKResponse{
		Response:      response,
		CorrelationID: correlation.FromContext(ctx),
	})
}

func DoBadRequestResponse(ctx context.Context, result RequestErrors, writer http.ResponseWriter) {
	result.CorrelationID = correlation.FromContext(ctx)
	writeJSON(ctx, writer, http.StatusBadRequest, result)
}

func DoErrorResponse(ctx context.Context, writer http.ResponseWriter) {
	writeJSON(ctx, writer, http.StatusInternalServerError, ErrorResponse{
		Message:       "An unexpected error has been encountered. Please reference the included correlation id in any support inquires.",
		CorrelationID: correlation.FromContext(ctx),
	})
}

// writeJSON marshals before touching the writer, so a marshal failure can
// still degrade to a bare 500 instead of a half-written body.
func writeJSON(ctx context.Context, writer http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to marshal response body")
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("content-type", "application/json")
	writer.WriteHeader(status)
	_, _ = writer.Write(data)
}
