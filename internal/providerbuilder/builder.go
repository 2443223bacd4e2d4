package providerbuilder

import (
	"context"
	"fmt"

	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	googleprovider "github.com/LinkovichChomofski/calendaragent/internal/provider/google"
	memoryprovider "github.com/LinkovichChomofski/calendaragent/internal/provider/memory"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	// Type is one of google, memory or none.
	Type   string
	Google googleprovider.Config
}

// Authorizer is implemented by clients that need an interactive OAuth step.
type Authorizer interface {
	IsAuthorized() bool
	AuthURL() string
	Exchange(ctx context.Context, code string) error
}

// New returns nil for type none, leaving the application local only.
func New(ctx context.Context, config Config) (provider.Client, error) {
	switch config.Type {
	case "", "none":
		return nil, nil
	case "memory":
		c := memoryprovider.New()
		c.AddKnownCalendar(provider.CalendarInfo{ID: "primary", Summary: "primary", Primary: true, AccessRole: "owner"}, true)
		return c, nil
	case "google":
		c, err := googleprovider.New(ctx, config.Google)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		if !c.IsAuthorized() {
			log.WithField("url", c.AuthURL()).Warn("google calendar is not authorized, run the authorize command")
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider type %s", config.Type)
	}
}
