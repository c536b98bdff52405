package fetchers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-listing-api/pkg/credentials"
)

func newTestDispatcher(srvURL string) *MutationDispatcher {
	return NewMutationDispatcher(FetcherConfig{
		Name:     "products",
		Endpoint: srvURL + "/api/admin/products",
		Timeout:  5 * time.Second,
	}, credentials.Static(testToken))
}

func TestDispatch_Routes(t *testing.T) {
	cases := []struct {
		mutation Mutation
		method   string
		path     string
		body     map[string]any
	}{
		{
			mutation: Mutation{ID: "p1", Action: ActionApprove},
			method:   http.MethodPost,
			path:     "/api/admin/products/p1",
			body:     map[string]any{"action": "approve"},
		},
		{
			mutation: Mutation{ID: "p2", Action: ActionReject, Payload: map[string]any{"reason": "photos floues"}},
			method:   http.MethodPost,
			path:     "/api/admin/products/p2",
			body:     map[string]any{"action": "reject", "reason": "photos floues"},
		},
		{
			mutation: Mutation{ID: "p3", Action: ActionUpdateStatus, Payload: map[string]any{"status": "shipped"}},
			method:   http.MethodPut,
			path:     "/api/admin/products/p3",
			body:     map[string]any{"status": "shipped"},
		},
		{
			mutation: Mutation{ID: "p4", Action: ActionDelete},
			method:   http.MethodDelete,
			path:     "/api/admin/products/p4",
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.mutation.Action), func(t *testing.T) {
			b, srv := newFakeBackend(t, nil)
			d := newTestDispatcher(srv.URL)
			called := 0

			err := d.Dispatch(context.Background(), tc.mutation, func() { called++ })

			require.NoError(t, err)
			assert.Equal(t, 1, called)

			got := b.lastMutation()
			assert.Equal(t, tc.method, got.Method)
			assert.Equal(t, tc.path, got.Path)
			assert.Equal(t, "Bearer "+testToken, got.Auth)
			if tc.body != nil {
				assert.Equal(t, tc.body, got.Body)
			}
			assert.False(t, d.InFlight(tc.mutation.Action, tc.mutation.ID))
		})
	}
}

func TestDispatch_RejectedDoesNotCallOnSuccess(t *testing.T) {
	b, srv := newFakeBackend(t, nil)
	b.mutationBody = `{"success":false,"message":"Produit déjà approuvé"}`
	d := newTestDispatcher(srv.URL)
	called := false

	err := d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionApprove}, func() { called = true })

	require.Error(t, err)
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "action failed: Produit déjà approuvé", UserMessage(err))
}

func TestDispatch_HTTPErrorAndMalformed(t *testing.T) {
	b, srv := newFakeBackend(t, nil)
	d := newTestDispatcher(srv.URL)

	b.mutationStatus = http.StatusForbidden
	b.mutationBody = `{"success":false,"message":"Forbidden"}`
	err := d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionDelete}, nil)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, http.StatusForbidden, actionErr.Status)

	b.mutationStatus = http.StatusOK
	b.mutationBody = `not json`
	err = d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionDelete}, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDispatch_NoContentIsSuccess(t *testing.T) {
	b, srv := newFakeBackend(t, nil)
	b.mutationStatus = http.StatusNoContent
	b.mutationBody = " "
	d := newTestDispatcher(srv.URL)

	err := d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionDelete}, nil)

	assert.NoError(t, err)
}

func TestDispatch_Validation(t *testing.T) {
	b, srv := newFakeBackend(t, nil)
	d := newTestDispatcher(srv.URL)

	err := d.Dispatch(context.Background(), Mutation{Action: ActionApprove}, nil)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	err = d.Dispatch(context.Background(), Mutation{ID: "p1", Action: "archive"}, nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	err = d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionUpdateStatus}, nil)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	assert.Empty(t, b.mutations)
}

func TestDispatchBulk(t *testing.T) {
	b, srv := newFakeBackend(t, nil)
	d := newTestDispatcher(srv.URL)
	called := false

	err := d.DispatchBulk(context.Background(), BulkMutation{Action: ActionApprove, IDs: []string{"p2", "p1"}}, func() { called = true })

	require.NoError(t, err)
	assert.True(t, called)
	got := b.lastMutation()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/admin/products/manage", got.Path)
	assert.Equal(t, "approve", got.Body["action"])
	assert.Equal(t, []any{"p2", "p1"}, got.Body["ids"])
}

func TestDispatchBulk_Validation(t *testing.T) {
	_, srv := newFakeBackend(t, nil)
	d := newTestDispatcher(srv.URL)

	err := d.DispatchBulk(context.Background(), BulkMutation{Action: ActionDelete}, nil)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	err = d.DispatchBulk(context.Background(), BulkMutation{Action: ActionDelete, IDs: []string{""}}, nil)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	err = d.DispatchBulk(context.Background(), BulkMutation{Action: ActionUpdateStatus, IDs: []string{"p1"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidMutation)
}

func TestDispatch_NoCredential(t *testing.T) {
	_, srv := newFakeBackend(t, nil)
	d := NewMutationDispatcher(FetcherConfig{Endpoint: srv.URL + "/api/admin/products"}, credentials.Static(""))

	err := d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionApprove}, nil)

	assert.ErrorIs(t, err, credentials.ErrNoCredential)
}

func TestDispatch_IdenticalMutationInFlight(t *testing.T) {
	_, srv := newFakeBackend(t, nil)
	d := newTestDispatcher(srv.URL)

	// Hold the flight slot as a running call would.
	d.inFlight[flightKey(ActionApprove, []string{"p1"})] = struct{}{}

	err := d.Dispatch(context.Background(), Mutation{ID: "p1", Action: ActionApprove}, nil)
	assert.ErrorIs(t, err, ErrMutationInFlight)
	assert.True(t, d.InFlight(ActionApprove, "p1"))

	err = d.Dispatch(context.Background(), Mutation{ID: "p2", Action: ActionApprove}, nil)
	assert.NoError(t, err, "other items are not blocked")
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("updateStatus")
	require.NoError(t, err)
	assert.Equal(t, ActionUpdateStatus, a)

	_, err = ParseAction("publish")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestFlightKeyIgnoresOrder(t *testing.T) {
	assert.Equal(t, flightKey(ActionDelete, []string{"b", "a"}), flightKey(ActionDelete, []string{"a", "b"}))
	assert.NotEqual(t, flightKey(ActionDelete, []string{"a"}), flightKey(ActionApprove, []string{"a"}))
}
