package gcal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"studiosync/internal/calendar"
	"studiosync/internal/model"
)

func newTestClient(t *testing.T, r *mux.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := NewWithOptions(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func TestListEvents(t *testing.T) {
	var got map[string]string
	r := mux.NewRouter()
	r.HandleFunc("/calendars/{id}/events", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		got = map[string]string{
			"id":           mux.Vars(req)["id"],
			"syncToken":    q.Get("syncToken"),
			"pageToken":    q.Get("pageToken"),
			"singleEvents": q.Get("singleEvents"),
			"showDeleted":  q.Get("showDeleted"),
			"maxResults":   q.Get("maxResults"),
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"nextPageToken": "p2",
			"items": []map[string]any{
				{
					"id":          "e1",
					"status":      "confirmed",
					"summary":     "Ayşe ✅ SA",
					"description": "Kapora: 500",
					"start":       map[string]string{"dateTime": "2026-06-13T10:30:00+03:00"},
					"end":         map[string]string{"dateTime": "2026-06-13T12:00:00+03:00"},
				},
				{"id": "e2", "status": "cancelled"},
				{"id": "e3", "start": map[string]string{"date": "2026-07-01"}},
			},
		})
	}).Methods(http.MethodGet)

	c := newTestClient(t, r)
	page, err := c.ListEvents(context.Background(), "studio", calendar.ListQuery{
		SyncToken:    "tok",
		PageToken:    "p1",
		SingleEvents: true,
		ShowDeleted:  true,
		MaxResults:   2500,
	})
	require.NoError(t, err)

	assert.Equal(t, "studio", got["id"])
	assert.Equal(t, "tok", got["syncToken"])
	assert.Equal(t, "p1", got["pageToken"])
	assert.Equal(t, "true", got["singleEvents"])
	assert.Equal(t, "true", got["showDeleted"])
	assert.Equal(t, "2500", got["maxResults"])

	assert.Equal(t, "p2", page.NextPageToken)
	assert.Empty(t, page.NextSyncToken)
	require.Len(t, page.Items, 3)

	e1 := page.Items[0]
	assert.Equal(t, "Ayşe ✅ SA", e1.Summary)
	assert.True(t, e1.Start.DateTime.Equal(time.Date(2026, 6, 13, 7, 30, 0, 0, time.UTC)))
	assert.Equal(t, model.StatusConfirmed, e1.Status)

	assert.True(t, page.Items[1].Cancelled())
	assert.True(t, page.Items[1].Start.IsZero())

	assert.Equal(t, "2026-07-01", page.Items[2].Start.Date)
	assert.Equal(t, model.StatusConfirmed, page.Items[2].Status)
}

func TestListEventsGone(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/calendars/{id}/events", func(w http.ResponseWriter, _ *http.Request) {
		apiError(w, http.StatusGone, "Sync token is no longer valid, a full sync is required.")
	})

	_, err := newTestClient(t, r).ListEvents(context.Background(), "studio", calendar.ListQuery{SyncToken: "old"})
	assert.ErrorIs(t, err, calendar.ErrSyncTokenExpired)
}

func TestListEventsOtherError(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/calendars/{id}/events", func(w http.ResponseWriter, _ *http.Request) {
		apiError(w, http.StatusForbidden, "forbidden")
	})

	_, err := newTestClient(t, r).ListEvents(context.Background(), "studio", calendar.ListQuery{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, calendar.ErrSyncTokenExpired)
}

func TestEnsureSubscribed(t *testing.T) {
	status := http.StatusConflict
	r := mux.NewRouter()
	r.HandleFunc("/users/me/calendarList", func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			apiError(w, status, "nope")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "studio"})
	}).Methods(http.MethodPost)
	c := newTestClient(t, r)

	assert.NoError(t, c.EnsureSubscribed(context.Background(), "studio"))

	status = http.StatusOK
	assert.NoError(t, c.EnsureSubscribed(context.Background(), "studio"))

	status = http.StatusForbidden
	assert.Error(t, c.EnsureSubscribed(context.Background(), "studio"))
}

func TestWatch(t *testing.T) {
	var body map[string]any
	exp := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	r := mux.NewRouter()
	r.HandleFunc("/calendars/{id}/events/watch", func(w http.ResponseWriter, req *http.Request) {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &body)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         body["id"],
			"resourceId": "res-1",
			"expiration": exp.UnixMilli(),
		})
	}).Methods(http.MethodPost)

	ch, err := newTestClient(t, r).Watch(context.Background(), "studio", WatchRequest{
		ChannelID: "chan-1",
		Address:   "https://sync.example.com/webhook",
		Token:     "secret",
		TTL:       7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, "web_hook", body["type"])
	assert.Equal(t, "https://sync.example.com/webhook", body["address"])
	assert.Equal(t, map[string]any{"ttl": "604800"}, body["params"])

	assert.Equal(t, "chan-1", ch.ID)
	assert.Equal(t, "studio", ch.StreamID)
	assert.Equal(t, "res-1", ch.ResourceID)
	assert.Equal(t, "secret", ch.Token)
	assert.True(t, ch.Expiration.Equal(exp))
}
