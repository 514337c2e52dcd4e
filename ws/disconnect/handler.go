// Package disconnect tears down a subscriber registration when its
// WebSocket connection closes, whether the client unsubscribed cleanly or
// the gateway timed the connection out.
package disconnect

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/racetiming/pipeline/ws"
)

// ConnectionStore is the registry side the teardown needs: the reverse
// lookup from connection id to event, then the delete of both rows.
type ConnectionStore interface {
	GetEventIDByConnection(ctx context.Context, connectionID string) (*int64, error)
	DeleteSubscriberConnection(ctx context.Context, eventID int64, connectionID string) error
}

// NewHandler builds the "$disconnect" route handler. A connection with no
// registration (it never subscribed, or a prior disconnect already cleaned
// it up) is not an error.
func NewHandler(connStore ConnectionStore) ws.RouteHandler {
	return ws.RouteHandlerFunc(func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
		logger := zerolog.Ctx(ctx)
		connectionID := request.RequestContext.ConnectionID

		eventID, err := connStore.GetEventIDByConnection(ctx, connectionID)
		if err != nil {
			logger.Err(err).Msg("error looking up event for connection")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
		}
		if eventID == nil {
			logger.Debug().Str("connection", connectionID).Msg("no registration for connection, nothing to tear down")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
		}

		if err := connStore.DeleteSubscriberConnection(ctx, *eventID, connectionID); err != nil {
			logger.Err(err).Int64("eventID", *eventID).Msg("error deleting connection registration")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
		}

		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	})
}
