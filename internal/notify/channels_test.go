package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/store"
)

func testEvent() domain.DingEvent {
	return domain.DingEvent{
		Type:            domain.EventTypeDingRequest,
		SessionID:       "session_1",
		OwnerID:         "alice",
		VisitorDeviceID: "device-1",
		VisitorLocation: "front door",
		Message:         "Someone is at your door and wants to talk!",
		Timestamp:       time.Now(),
	}
}

// --- push ---

type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
	sendErr  error
}

func (r *recordingSink) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func TestPushChannel_DeliversToRegisteredSink(t *testing.T) {
	sinks := store.NewSinks()
	sink := &recordingSink{}
	sinks.Register("alice", sink)

	ch := NewPushChannel(sinks)
	require.NoError(t, ch.Send(context.Background(), domain.OwnerContact{}, testEvent()))

	require.Len(t, sink.payloads, 1)
	var got domain.DingEvent
	require.NoError(t, json.Unmarshal(sink.payloads[0], &got))
	assert.Equal(t, "ding_request", got.Type)
	assert.Equal(t, "session_1", got.SessionID)
	assert.Equal(t, "front door", got.VisitorLocation)
}

func TestPushChannel_NoSinkIsSkip(t *testing.T) {
	ch := NewPushChannel(store.NewSinks())
	err := ch.Send(context.Background(), domain.OwnerContact{}, testEvent())
	assert.ErrorIs(t, err, ErrNoTarget)
}

// --- sms ---

type twilioCall struct {
	path string
	form map[string]string
	user string
	pass string
}

func newTwilioServer(t *testing.T, status int) (*httptest.Server, *[]twilioCall) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]twilioCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		*calls = append(*calls, twilioCall{
			path: r.URL.Path,
			form: map[string]string{
				"From": r.PostFormValue("From"),
				"To":   r.PostFormValue("To"),
				"Body": r.PostFormValue("Body"),
			},
			user: user,
			pass: pass,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestSMSChannel_SendsToOwnerRecipients(t *testing.T) {
	srv, calls := newTwilioServer(t, http.StatusCreated)

	ch := NewSMSChannel("AC123", "token", "+15550000", []string{"+15559999"})
	ch.baseURL = srv.URL

	contact := domain.OwnerContact{SMSRecipients: []string{"+15550100", "+15550101"}}
	require.NoError(t, ch.Send(context.Background(), contact, testEvent()))

	require.Len(t, *calls, 2)
	first := (*calls)[0]
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", first.path)
	assert.Equal(t, "AC123", first.user)
	assert.Equal(t, "token", first.pass)
	assert.Equal(t, "+15550000", first.form["From"])
	assert.Equal(t, "+15550100", first.form["To"])
	assert.Equal(t,
		"Ding alert for alice. Session session_1 from device-1. Someone is at the door. Location: front door.",
		first.form["Body"])
	assert.Equal(t, "+15550101", (*calls)[1].form["To"])
}

func TestSMSChannel_FallsBackToDefaults(t *testing.T) {
	srv, calls := newTwilioServer(t, http.StatusCreated)

	ch := NewSMSChannel("AC123", "token", "+15550000", []string{"+15559999", ""})
	ch.baseURL = srv.URL

	require.NoError(t, ch.Send(context.Background(), domain.OwnerContact{}, testEvent()))

	require.Len(t, *calls, 1)
	assert.Equal(t, "+15559999", (*calls)[0].form["To"])
}

func TestSMSChannel_NoRecipientsIsSkip(t *testing.T) {
	ch := NewSMSChannel("AC123", "token", "+15550000", nil)
	err := ch.Send(context.Background(), domain.OwnerContact{}, testEvent())
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestSMSChannel_UnconfiguredIsSkip(t *testing.T) {
	ch := NewSMSChannel("", "", "", []string{"+15559999"})
	err := ch.Send(context.Background(), domain.OwnerContact{}, testEvent())
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestSMSChannel_ErrorStatus(t *testing.T) {
	srv, _ := newTwilioServer(t, http.StatusUnauthorized)

	ch := NewSMSChannel("AC123", "token", "+15550000", []string{"+15559999"})
	ch.baseURL = srv.URL

	err := ch.Send(context.Background(), domain.OwnerContact{}, testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

// --- webhook ---

func TestWebhookChannel_PostsTextPayload(t *testing.T) {
	var body []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel("")
	contact := domain.OwnerContact{WebhookURL: srv.URL}
	require.NoError(t, ch.Send(context.Background(), contact, testEvent()))

	assert.Equal(t, "application/json", contentType)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t,
		"**New Ding Request**\n- Session: session_1\n- Device: device-1\n- Location: front door\nRespond in the Ding console to accept or decline.",
		payload["text"])
}

func TestWebhookChannel_OmitsEmptyLocation(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	t.Cleanup(srv.Close)

	event := testEvent()
	event.VisitorLocation = ""

	ch := NewWebhookChannel(srv.URL)
	require.NoError(t, ch.Send(context.Background(), domain.OwnerContact{}, event))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.NotContains(t, payload["text"], "Location")
}

func TestWebhookChannel_OwnerURLBeatsDefault(t *testing.T) {
	var hits int
	ownerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(ownerSrv.Close)
	defaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("default webhook must not be called when the owner has one")
	}))
	t.Cleanup(defaultSrv.Close)

	ch := NewWebhookChannel(defaultSrv.URL)
	contact := domain.OwnerContact{WebhookURL: ownerSrv.URL}
	require.NoError(t, ch.Send(context.Background(), contact, testEvent()))
	assert.Equal(t, 1, hits)
}

func TestWebhookChannel_NoURLIsSkip(t *testing.T) {
	ch := NewWebhookChannel("")
	err := ch.Send(context.Background(), domain.OwnerContact{}, testEvent())
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	ch := NewWebhookChannel(srv.URL)
	err := ch.Send(context.Background(), domain.OwnerContact{}, testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
