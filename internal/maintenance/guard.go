package maintenance

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/models"
)

// WindowLister loads the active windows of a project.
type WindowLister interface {
	ListMaintenanceWindows(ctx context.Context, projectID string) ([]models.MaintenanceWindow, error)
}

// Guard answers IsSuppressed for alert dispatch. Windows are cached per
// project for ttl.
type Guard struct {
	windows WindowLister
	cache   *cache.Cache
	log     *logrus.Entry
}

// NewGuard creates a Guard. A ttl of zero disables caching.
func NewGuard(windows WindowLister, ttl time.Duration, logger logrus.FieldLogger) *Guard {
	g := &Guard{
		windows: windows,
		log:     logger.WithField("component", "maintenance"),
	}
	if ttl > 0 {
		g.cache = cache.New(ttl, 2*ttl)
	}
	return g
}

// IsSuppressed reports whether projectID is inside any active window at now.
// When windows cannot be loaded the guard does not suppress.
func (g *Guard) IsSuppressed(ctx context.Context, projectID string, now time.Time) bool {
	windows, err := g.load(ctx, projectID)
	if err != nil {
		g.log.WithError(err).WithField("project_id", projectID).Warn("could not load maintenance windows")
		return false
	}
	for _, w := range windows {
		in, err := Contains(w, now)
		if err != nil {
			g.log.WithError(err).WithField("window_id", w.ID).Warn("skipping malformed maintenance window")
			continue
		}
		if in {
			return true
		}
	}
	return false
}

// Invalidate drops the cached windows of a project.
func (g *Guard) Invalidate(projectID string) {
	if g.cache != nil {
		g.cache.Delete(projectID)
	}
}

func (g *Guard) load(ctx context.Context, projectID string) ([]models.MaintenanceWindow, error) {
	if g.cache != nil {
		if v, ok := g.cache.Get(projectID); ok {
			return v.([]models.MaintenanceWindow), nil
		}
	}
	windows, err := g.windows.ListMaintenanceWindows(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.SetDefault(projectID, windows)
	}
	return windows, nil
}
