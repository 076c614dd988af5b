package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vendorlution-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports the failing ones.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP db.Pinger) http.HandlerFunc {
	checks := map[string]db.Pinger{"database": dbP, "redis": redisP}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vendorlution-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
