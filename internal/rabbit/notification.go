package rabbit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
)

const (
	KindSync      = "sync"
	KindScheduled = "scheduled"
	KindUpdated   = "updated"
	KindCancelled = "cancelled"
)

// Notification is the message published after a sync pass or an event
// change.
type Notification struct {
	Kind       string    `json:"kind"`
	CalendarID string    `json:"calendarId,omitempty"`
	At         time.Time `json:"at"`

	PassID   string   `json:"passId,omitempty"`
	Success  bool     `json:"success"`
	Inserted int      `json:"inserted,omitempty"`
	Updated  int      `json:"updated,omitempty"`
	Deleted  int      `json:"deleted,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	EventID string    `json:"eventId,omitempty"`
	Title   string    `json:"title,omitempty"`
	Start   time.Time `json:"start,omitempty"`
}

func SyncNotification(res reconciler.Result, at time.Time) Notification {
	return Notification{
		Kind:       KindSync,
		CalendarID: res.CalendarID,
		At:         at,
		PassID:     res.PassID,
		Success:    res.Success,
		Inserted:   res.Inserted,
		Updated:    res.Updated,
		Deleted:    res.Deleted,
		Errors:     res.Errors,
	}
}

func EventNotification(kind string, e storage.Event, at time.Time) Notification {
	return Notification{
		Kind:       kind,
		CalendarID: storage.StringValue(e.CalendarID),
		At:         at,
		Success:    true,
		EventID:    e.ID,
		Title:      e.Title,
		Start:      e.Start,
	}
}

func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("failed to parse notification: %w", err)
	}
	return n, nil
}

// String renders n as a single human readable line.
func (n Notification) String() string {
	switch n.Kind {
	case KindSync:
		if !n.Success {
			return fmt.Sprintf("sync of %s failed: %s", n.CalendarID, strings.Join(n.Errors, "; "))
		}
		return fmt.Sprintf("sync of %s: %d new, %d updated, %d removed", n.CalendarID, n.Inserted, n.Updated, n.Deleted)
	default:
		return fmt.Sprintf("%s %q at %s", n.Kind, n.Title, n.Start.Format(time.RFC1123))
	}
}
