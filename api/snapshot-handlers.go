package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewSessionStateHandler answers getCurrentSessionState. The
// binary form is preferred for size and is served whenever the caller sends
// Accept: application/octet-stream; JSON is the default.
func NewSessionStateHandler(snapshots SnapshotProvider) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		logger := zerolog.Ctx(request.Context())

		eventID, err := strconv.ParseInt(chi.URLParam(request, "eventID"), 10, 64)
		if err != nil {
			DoBadRequestResponse(request.Context(), RequestErrors{}.WithFieldError("eventID", "must be numeric"), writer)
			return
		}

		state, ok := snapshots.CurrentSessionState(eventID)
		if !ok {
			writer.WriteHeader(http.StatusNotFound)
			return
		}

		if request.Header.Get("Accept") == "application/octet-stream" {
			data, err := state.MarshalBinary()
			if err != nil {
				logger.Error().Err(err).Msg("failed to marshal session state")
				DoErrorResponse(request.Context(), writer)
				return
			}
			writer.Header().Set("content-type", "application/octet-stream")
			_, _ = writer.Write(data)
			return
		}

		DoOKResponse(request.Context(), state, writer)
	})
}

// NewCarPatchesHandler answers getCurrentFullCarPatches, used to
// seed a freshly-subscribed connection over REST rather than the WebSocket
// transport's own seeding path.
func NewCarPatchesHandler(snapshots SnapshotProvider) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		eventID, err := strconv.ParseInt(chi.URLParam(request, "eventID"), 10, 64)
		if err != nil {
			DoBadRequestResponse(request.Context(), RequestErrors{}.WithFieldError("eventID", "must be numeric"), writer)
			return
		}

		patches := snapshots.CurrentFullCarPatches(eventID)
		DoOKResponse(request.Context(), patches, writer)
	})
}
