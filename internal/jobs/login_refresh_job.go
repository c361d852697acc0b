package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/website"
)

// LoginRefresher re-checks the login state of every account.
type LoginRefresher interface {
	RefreshAll(ctx context.Context, registry *website.Registry) (int, error)
}

type LoginRefreshJob struct {
	directory LoginRefresher
	registry  *website.Registry
	timeout   time.Duration
}

func NewLoginRefreshJob(directory LoginRefresher, registry *website.Registry, timeout time.Duration) *LoginRefreshJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &LoginRefreshJob{
		directory: directory,
		registry:  registry,
		timeout:   timeout,
	}
}

// RefreshLogins is run by cron, so it logs instead of returning errors.
func (c *LoginRefreshJob) RefreshLogins() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	loggedIn, err := c.directory.RefreshAll(ctx, c.registry)
	if err != nil {
		slog.Error("login refresh failed", "error", err)
		return
	}
	slog.Info("login refresh done", "logged_in", loggedIn, "took", time.Since(start))
}
