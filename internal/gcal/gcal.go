// Package gcal reads events from Google Calendar and manages push channels.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"studiosync/internal/calendar"
	appLog "studiosync/internal/log"
	"studiosync/internal/model"
)

// Client wraps the Calendar API service.
type Client struct {
	svc *calendarapi.Service
}

// New builds a client authenticated with the service account key at
// credentialsFile, or with application default credentials when it is empty.
func New(ctx context.Context, credentialsFile string) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(calendarapi.CalendarScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return NewWithOptions(ctx, opts...)
}

// NewWithOptions builds a client from raw client options.
func NewWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := calendarapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: new service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListEvents implements calendar.Source. A 410 Gone answer to a sync token
// request is reported as calendar.ErrSyncTokenExpired.
func (c *Client) ListEvents(ctx context.Context, calendarID string, q calendar.ListQuery) (*calendar.Page, error) {
	call := c.svc.Events.List(calendarID).
		Context(ctx).
		SingleEvents(q.SingleEvents).
		ShowDeleted(q.ShowDeleted)
	if q.SyncToken != "" {
		call = call.SyncToken(q.SyncToken)
	}
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}
	if !q.TimeMin.IsZero() {
		call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
	}
	if !q.TimeMax.IsZero() {
		call = call.TimeMax(q.TimeMax.Format(time.RFC3339))
	}
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}

	res, err := call.Do()
	if err != nil {
		if hasCode(err, http.StatusGone) {
			return nil, fmt.Errorf("%w: %v", calendar.ErrSyncTokenExpired, err)
		}
		return nil, fmt.Errorf("gcal: list events of %s: %w", calendarID, err)
	}

	page := &calendar.Page{
		Items:         make([]model.Event, 0, len(res.Items)),
		NextPageToken: res.NextPageToken,
		NextSyncToken: res.NextSyncToken,
	}
	for _, item := range res.Items {
		page.Items = append(page.Items, toEvent(item))
	}
	return page, nil
}

// EnsureSubscribed adds calendarID to the caller's calendar list. A calendar
// that is already listed is not an error.
func (c *Client) EnsureSubscribed(ctx context.Context, calendarID string) error {
	_, err := c.svc.CalendarList.Insert(&calendarapi.CalendarListEntry{Id: calendarID}).Context(ctx).Do()
	if err == nil {
		appLog.Info("calendar subscribed", "calendar", calendarID)
		return nil
	}
	if hasCode(err, http.StatusConflict) {
		return nil
	}
	return fmt.Errorf("gcal: subscribe %s: %w", calendarID, err)
}

// WatchRequest describes a push channel to open.
type WatchRequest struct {
	ChannelID string
	Address   string
	Token     string
	TTL       time.Duration
}

// Watch opens a push channel delivering change notifications for calendarID
// to req.Address.
func (c *Client) Watch(ctx context.Context, calendarID string, req WatchRequest) (model.Channel, error) {
	ch := &calendarapi.Channel{
		Id:      req.ChannelID,
		Type:    "web_hook",
		Address: req.Address,
		Token:   req.Token,
	}
	if req.TTL > 0 {
		ch.Params = map[string]string{"ttl": strconv.FormatInt(int64(req.TTL/time.Second), 10)}
	}

	res, err := c.svc.Events.Watch(calendarID, ch).Context(ctx).Do()
	if err != nil {
		return model.Channel{}, fmt.Errorf("gcal: watch %s: %w", calendarID, err)
	}
	return model.Channel{
		ID:         res.Id,
		StreamID:   calendarID,
		ResourceID: res.ResourceId,
		Token:      req.Token,
		Expiration: time.UnixMilli(res.Expiration).UTC(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Stop closes a push channel. A channel the API no longer knows is ignored.
func (c *Client) Stop(ctx context.Context, ch model.Channel) error {
	err := c.svc.Channels.Stop(&calendarapi.Channel{Id: ch.ID, ResourceId: ch.ResourceID}).Context(ctx).Do()
	if err != nil && !hasCode(err, http.StatusNotFound) {
		return fmt.Errorf("gcal: stop channel %s: %w", ch.ID, err)
	}
	return nil
}

func hasCode(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func toEvent(item *calendarapi.Event) model.Event {
	ev := model.Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Status:      model.EventStatus(item.Status),
		Start:       eventTime(item.Start),
		End:         eventTime(item.End),
	}
	if ev.Status == "" {
		ev.Status = model.StatusConfirmed
	}
	return ev
}

func eventTime(dt *calendarapi.EventDateTime) model.EventTime {
	if dt == nil {
		return model.EventTime{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return model.EventTime{DateTime: t}
		}
	}
	return model.EventTime{Date: dt.Date}
}
