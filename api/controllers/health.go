package controllers

import (
	"net/http"

	"github.com/vendorhub/vendorhub-backend/api/responses"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	pkgredis "github.com/vendorhub/vendorhub-backend/pkg/redis"
)

const envHeader = "X-VendorHub-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the API can actually reach its backing stores.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pkgredis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database not ready"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis not ready"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
