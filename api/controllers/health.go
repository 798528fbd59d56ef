package controllers

import (
	"net/http"

	"github.com/tobennaogbu/kobocart-backend/api/responses"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kobocart-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady answers ready only while both storage dependencies respond to
// a ping. Probe failures report which dependency is down, not why.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kobocart-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if dbP == nil {
			checks["postgres"] = "not configured"
			healthy = false
		} else if err := dbP.Ping(r.Context()); err != nil {
			if logg != nil {
				logg.Error(r.Context(), "health.postgres", err)
			}
			checks["postgres"] = "unreachable"
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}

		if redisP == nil {
			checks["redis"] = "not configured"
			healthy = false
		} else if err := redisP.Ping(r.Context()); err != nil {
			if logg != nil {
				logg.Error(r.Context(), "health.redis", err)
			}
			checks["redis"] = "unreachable"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}

		if !healthy {
			responses.WriteError(r.Context(), nil, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"status": "ready",
			"checks": checks,
		})
	}
}
