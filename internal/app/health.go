package app

import (
	"context"
	"time"

	"portfolioapi/internal/notify"
)

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  HealthServices `json:"services"`
	Email     EmailHealth    `json:"email"`
}

type HealthServices struct {
	Database string `json:"database"`
	Email    string `json:"email"`
	CV       string `json:"cv"`
}

type EmailHealth struct {
	HasUser     bool   `json:"hasUser"`
	HasPassword bool   `json:"hasPassword"`
	User        string `json:"user"`
}

// Health reports configured-vs-not for storage, mail and the CV. It never
// fails; probe errors show up in the report.
func (a *App) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "healthy",
		Timestamp: a.now(),
		Services: HealthServices{
			Database: a.databaseStatus(ctx),
			Email:    "not configured",
			CV:       "not available",
		},
		Email: EmailHealth{
			HasUser:     a.email.User != "",
			HasPassword: a.email.HasPassword,
			User:        notify.MaskAddress(a.email.User),
		},
	}
	if a.EmailConfigured() {
		report.Services.Email = "configured"
	}
	if _, ok, err := a.ResolveCV(ctx); err == nil && ok {
		report.Services.CV = "available"
	}
	return report
}

func (a *App) databaseStatus(ctx context.Context) string {
	if a.store.Kind() == "memory" {
		return "memory"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		a.logger.Warn("database ping failed", "err", err)
		return "error"
	}
	return "connected"
}
