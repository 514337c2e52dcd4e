package disconnect

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnectionStore struct {
	lookupEventID *int64
	lookupErr     error
	deleteErr     error

	deletedEventID int64
	deletedConn    string
	deleteCalled   bool
}

func (f *fakeConnectionStore) GetEventIDByConnection(_ context.Context, _ string) (*int64, error) {
	return f.lookupEventID, f.lookupErr
}

func (f *fakeConnectionStore) DeleteSubscriberConnection(_ context.Context, eventID int64, connectionID string) error {
	f.deleteCalled = true
	f.deletedEventID = eventID
	f.deletedConn = connectionID
	return f.deleteErr
}

func TestHandler_DeletesConnectionWhenFound(t *testing.T) {
	eventID := int64(42)
	store := &fakeConnectionStore{lookupEventID: &eventID}
	handler := NewHandler(store)

	resp, err := handler.HandleRequest(context.Background(), events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{ConnectionID: "conn-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, store.deleteCalled)
	assert.Equal(t, eventID, store.deletedEventID)
	assert.Equal(t, "conn-1", store.deletedConn)
}

func TestHandler_UnknownConnectionSkipsDelete(t *testing.T) {
	store := &fakeConnectionStore{}
	handler := NewHandler(store)

	resp, err := handler.HandleRequest(context.Background(), events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{ConnectionID: "conn-unknown"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, store.deleteCalled)
}

func TestHandler_LookupErrorReturns500(t *testing.T) {
	store := &fakeConnectionStore{lookupErr: errors.New("dynamo unavailable")}
	handler := NewHandler(store)

	resp, err := handler.HandleRequest(context.Background(), events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{ConnectionID: "conn-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandler_DeleteErrorReturns500(t *testing.T) {
	eventID := int64(42)
	store := &fakeConnectionStore{lookupEventID: &eventID, deleteErr: errors.New("write failed")}
	handler := NewHandler(store)

	resp, err := handler.HandleRequest(context.Background(), events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{ConnectionID: "conn-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
