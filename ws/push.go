// Package ws implements the WebSocket transport the output broadcaster
// fans patches out over: connect/disconnect routing and a
// post-to-connection push built on the API Gateway Management API.
package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/racetiming/pipeline/store"
	"github.com/rs/zerolog"
)

// Message is the envelope every egress event is wrapped in: Action names
// one of the egress events (SessionPatch, CarPatches, Reset).
type Message struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

type APIGatewayManagementClient interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
	DeleteConnection(ctx context.Context, params *apigatewaymanagementapi.DeleteConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.DeleteConnectionOutput, error)
}

type ConnectionLookup interface {
	GetSubscriberConnections(ctx context.Context, eventID int64) ([]store.SubscriberConnection, error)
}

// Pusher is the output broadcaster's fanout adapter: at-least-once
// delivery with ordering preserved per event, one HTTP POST
// per live connection.
type Pusher struct {
	client           APIGatewayManagementClient
	connectionLookup ConnectionLookup
}

func NewPusher(client APIGatewayManagementClient, connectionLookup ConnectionLookup) *Pusher {
	return &Pusher{
		client:           client,
		connectionLookup: connectionLookup,
	}
}

// Push dispatches one message to one connection. A gone connection (the
// subscriber disconnected without this pipeline observing it yet) is
// reported as (false, nil) rather than an error: the caller should prune it
// from the subscriber registry on the next disconnect sweep, not treat
// delivery failure as fatal to the rest of the fanout.
func (p *Pusher) Push(ctx context.Context, connectionID string, actionType string, payload any) (bool, error) {
	fullPayload := Message{
		Action:  actionType,
		Payload: payload,
	}

	data, err := json.Marshal(fullPayload)
	if err != nil {
		return false, err
	}

	_, err = p.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err != nil {
		var goneErr *types.GoneException
		if errors.As(err, &goneErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Disconnect closes a WebSocket connection, used when a push reports the
// connection as gone.
func (p *Pusher) Disconnect(ctx context.Context, connectionID string) {
	logger := zerolog.Ctx(ctx)

	_, err := p.client.DeleteConnection(ctx, &apigatewaymanagementapi.DeleteConnectionInput{
		ConnectionId: aws.String(connectionID),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to disconnect client")
	}
}

// Broadcast sends a message to every live subscriber of an event. It keeps
// going past a single failed push so one dead connection does not block
// fanout to the rest of the subscribers; delivery is at-least-once.
func (p *Pusher) Broadcast(ctx context.Context, eventID int64, actionType string, payload any) error {
	connections, err := p.connectionLookup.GetSubscriberConnections(ctx, eventID)
	if err != nil {
		return err
	}

	logger := zerolog.Ctx(ctx)
	for _, conn := range connections {
		ok, err := p.Push(ctx, conn.ConnectionID, actionType, payload)
		if err != nil {
			logger.Error().Err(err).Str("connectionID", conn.ConnectionID).Msg("failed to push to subscriber")
			continue
		}
		if !ok {
			p.Disconnect(ctx, conn.ConnectionID)
		}
	}

	return nil
}
