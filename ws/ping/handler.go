package ping

import (
	"net/http"

	"context"

	"github.com/aws/aws-lambda-go/events"
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

// NewHandler answers a liveness ping. Subscription state isn't checked here
// (no per-connection auth, the out-of-scope): a ping simply confirms
// the transport round-trip still works.
func NewHandler(pusher Pusher) ws.RouteHandler {
	return ws.RouteHandlerFunc(func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
		logger := zerolog.Ctx(ctx)
		connectionID := request.RequestContext.ConnectionID

		if _, err := pusher.Push(ctx, connectionID, "pong", Response{Success: true, Message: "pong"}); err != nil {
			logger.Error().Err(err).Msg("error pushing pong")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, err
		}

		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	})
}
