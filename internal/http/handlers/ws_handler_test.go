package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type inbox struct {
	got []events.Event
}

func (b *inbox) client(userID uuid.UUID, admin bool) *wsClient {
	return &wsClient{userID: userID, admin: admin, send: func(data []byte) error {
		var e events.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		b.got = append(b.got, e)
		return nil
	}}
}

func TestWSHubRoutesByRecipient(t *testing.T) {
	hub := NewWSHub(&config.Config{}, nil, zap.NewNop())

	var adminBox, userBox, otherBox inbox
	user := uuid.New()
	hub.register(adminBox.client(uuid.New(), true))
	userClient := userBox.client(user, false)
	hub.register(userClient)
	hub.register(otherBox.client(uuid.New(), false))

	hub.route(events.Event{Type: events.EventChangeSubmitted, Payload: map[string]any{"recipient": events.RecipientAdmins}})
	hub.route(events.Event{Type: events.EventChangeApproved, Payload: map[string]any{"recipient": events.UserRecipient(user)}})
	hub.route(events.Event{Type: events.EventChangeRejected, Payload: map[string]any{"recipient": "user:garbage"}})

	assert.Len(t, adminBox.got, 1)
	assert.Equal(t, events.EventChangeSubmitted, adminBox.got[0].Type)
	assert.Len(t, userBox.got, 1)
	assert.Equal(t, events.EventChangeApproved, userBox.got[0].Type)
	assert.Empty(t, otherBox.got)

	hub.unregister(userClient)
	hub.route(events.Event{Type: events.EventChangeApproved, Payload: map[string]any{"recipient": events.UserRecipient(user)}})
	assert.Len(t, userBox.got, 1)
	assert.NotContains(t, hub.clients, user)
}

func TestWSHubWritesOutsideTheLock(t *testing.T) {
	hub := NewWSHub(&config.Config{}, nil, zap.NewNop())

	// A socket that is still writing while another browser connects.
	var late inbox
	slow := &wsClient{userID: uuid.New(), admin: true, send: func([]byte) error {
		hub.register(late.client(uuid.New(), true))
		return nil
	}}
	hub.register(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.route(events.Event{Type: events.EventChangeSubmitted, Payload: map[string]any{"recipient": events.RecipientAdmins}})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("route blocked register while writing")
	}
	assert.Len(t, hub.clients, 2)
	assert.Empty(t, late.got, "clients registered mid-route wait for the next event")
}
