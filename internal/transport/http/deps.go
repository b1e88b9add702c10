package http

import (
	"log/slog"

	"github.com/go-push-engine/internal/application/dispatch"
	"github.com/go-push-engine/internal/infrastructure/dynamo"
	"github.com/go-push-engine/internal/infrastructure/jwtinfra"
	"github.com/go-push-engine/internal/infrastructure/rediscache"
	"github.com/go-push-engine/internal/infrastructure/s3archive"
)

// Deps holds all infrastructure dependencies for the router. Optional
// members (cache, archive, individual adapters) may be nil; the affected
// feature degrades instead of blocking startup.
type Deps struct {
	NotificationRepo *dynamo.NotificationRepo
	DeviceTokenRepo  *dynamo.DeviceTokenRepo
	TokenCache       *rediscache.TokenCache
	Adapters         []dispatch.Adapter
	ReportArchive    *s3archive.Store
	JWTProvider      *jwtinfra.Provider
	Logger           *slog.Logger
}
