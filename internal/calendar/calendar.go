// Package calendar defines the calendar source the sync engines read from.
package calendar

import (
	"context"
	"errors"
	"time"

	"studiosync/internal/model"
)

// ErrSyncTokenExpired is returned by a Source when the sync token passed in
// a ListQuery is no longer accepted. Callers must drop the token and relist.
var ErrSyncTokenExpired = errors.New("calendar: sync token expired")

// ListQuery selects a page of events. With SyncToken set the source returns
// only changes since the token was issued; without it the source lists every
// event between TimeMin and TimeMax.
type ListQuery struct {
	SyncToken    string
	PageToken    string
	TimeMin      time.Time
	TimeMax      time.Time
	SingleEvents bool
	ShowDeleted  bool
	MaxResults   int
}

// Page is one response from a Source. NextSyncToken is only set on the last
// page.
type Page struct {
	Items         []model.Event
	NextPageToken string
	NextSyncToken string
}

// Source lists events of a calendar.
type Source interface {
	ListEvents(ctx context.Context, calendarID string, q ListQuery) (*Page, error)
}
