// Package subscribe implements the "subscribe" WebSocket route: a
// connection registers against an event and is immediately seeded with a
// full snapshot plus fully-populated car patches, so it starts from the
// same state a session-change resend would give it.
package subscribe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/store"
	"github.com/racetiming/pipeline/ws"
	"github.com/rs/zerolog"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Pusher interface {
	Push(ctx context.Context, connectionID string, actionType string, payload any) (bool, error)
}

type ConnectionStore interface {
	SaveSubscriberConnection(ctx context.Context, conn store.SubscriberConnection) error
}

// SnapshotProvider supplies the current session state and full car patches
// for a live event, used to seed a freshly-subscribed connection.
type SnapshotProvider interface {
	CurrentSessionState(eventID int64) (model.SessionState, bool)
	CurrentFullCarPatches(eventID int64) []model.CarPositionPatch
}

func NewHandler(pusher Pusher, connStore ConnectionStore, snapshots SnapshotProvider) ws.RouteHandler {
	return ws.RouteHandlerFunc(func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
		logger := zerolog.Ctx(ctx)
		connectionID := request.RequestContext.ConnectionID

		var msg ws.SubscribeMessage
		if err := json.Unmarshal([]byte(request.Body), &msg); err != nil {
			logger.Warn().Err(err).Msg("failed to parse subscribe request")
			_, _ = pusher.Push(ctx, connectionID, "subscribed", Response{Success: false, Message: "invalid payload"})
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
		}

		if msg.EventID == 0 {
			logger.Warn().Msg("missing eventId in subscribe request")
			_, _ = pusher.Push(ctx, connectionID, "subscribed", Response{Success: false, Message: "missing eventId"})
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
		}

		if err := connStore.SaveSubscriberConnection(ctx, store.SubscriberConnection{
			EventID:      msg.EventID,
			ConnectionID: connectionID,
			ConnectedAt:  time.Now().UTC(),
		}); err != nil {
			logger.Error().Err(err).Msg("failed to save subscriber connection")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, err
		}

		if _, err := pusher.Push(ctx, connectionID, "subscribed", Response{Success: true, Message: "subscribed"}); err != nil {
			logger.Error().Err(err).Msg("error pushing subscribe confirmation")
		}

		if state, ok := snapshots.CurrentSessionState(msg.EventID); ok {
			if _, err := pusher.Push(ctx, connectionID, "SessionSnapshot", state); err != nil {
				logger.Error().Err(err).Msg("error pushing session snapshot")
			}
			patches := snapshots.CurrentFullCarPatches(msg.EventID)
			if len(patches) > 0 {
				if _, err := pusher.Push(ctx, connectionID, "CarPatches", patches); err != nil {
					logger.Error().Err(err).Msg("error pushing full car patches")
				}
			}
		}

		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	})
}
