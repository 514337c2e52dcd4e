package ws

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

type RouteHandler interface {
	HandleRequest(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)
}

type RouteHandlerFunc func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

func (r RouteHandlerFunc) HandleRequest(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	return r(ctx, request)
}

// SubscribeMessage carries the event a connection wants patches for. There
// is no auth: the snapshot-read surface and subscription fanout are public,
// matching a real-world timing tower.
type SubscribeMessage struct {
	Action  string `json:"action"`
	EventID int64  `json:"eventId"`
}

// Handler dispatches an API Gateway WebSocket proxy event by route key.
// There is no "auth" route, the feed is public; "subscribe" registers the
// connection against an event and "pingRequest" is a liveness check.
type Handler struct {
	subscribeHandler  RouteHandler
	pingHandler       RouteHandler
	disconnectHandler RouteHandler
}

func NewHandler(subscribeHandler RouteHandler, pingHandler RouteHandler, disconnectHandler RouteHandler) *Handler {
	return &Handler{subscribeHandler: subscribeHandler, pingHandler: pingHandler, disconnectHandler: disconnectHandler}
}

func (h *Handler) Handle(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	routeKey := request.RequestContext.RouteKey
	connectionID := request.RequestContext.ConnectionID

	logger := zerolog.Ctx(ctx).With().
		Str("routeKey", routeKey).
		Str("connectionID", connectionID).
		Logger()
	ctx = logger.WithContext(ctx)

	logger.Debug().Msg("handling websocket event")

	switch routeKey {
	case "$connect":
		return h.handleConnect(ctx, request)
	case "$disconnect":
		return h.handleDisconnect(ctx, request)
	case "subscribe":
		return h.subscribeHandler.HandleRequest(ctx, request)
	case "pingRequest":
		return h.pingHandler.HandleRequest(ctx, request)
	case "$default":
		return h.handleDefault(ctx, request)
	default:
		logger.Warn().Msg("unhandled route")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}
}

func (h *Handler) handleConnect(ctx context.Context, _ events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Msg("websocket connected, awaiting subscribe")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func (h *Handler) handleDisconnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Msg("websocket disconnected")
	if h.disconnectHandler != nil {
		return h.disconnectHandler.HandleRequest(ctx, request)
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func (h *Handler) handleDefault(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Warn().Str("body", request.Body).Msg("message with unrecognized action, dropping")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNotFound}, nil
}
