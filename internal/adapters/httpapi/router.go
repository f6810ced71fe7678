// Package httpapi は売上請求ユースケースを gin の REST API として公開します。
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/platform/logging"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
	HeaderCompanyID = "X-Company-Id"

	actorKey = "actor"
)

// NewRouter はルーティングを設定した gin.Engine を返します。
func NewRouter(uc claim.UseCase, logger *zap.Logger) *gin.Engine {
	logger = logging.OrNop(logger)

	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewClaimsHandler(uc)
	api := r.Group("/", actorMiddleware())
	api.GET("/claims", h.ListClaims)
	api.GET("/claims/:id", h.GetClaim)
	api.POST("/claims", h.CreateClaim)
	api.PUT("/claims", h.TransitionClaim)
	api.POST("/work-reports/:id/recompute", h.RecomputeWorkReport)

	return r
}

// actorMiddleware は上流ゲートウェイが付与したヘッダからアクターを組み立てます。
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := access.NewActor(
			c.GetHeader(HeaderActorID),
			c.GetHeader(HeaderActorRole),
			c.GetHeader(HeaderCompanyID),
		)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) access.Actor {
	actor, _ := c.MustGet(actorKey).(access.Actor)
	return actor
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("actor_id", c.GetHeader(HeaderActorID)),
		}
		if kind := c.GetString(errorKindKey); kind != "" {
			fields = append(fields, zap.String("error_kind", kind))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors.Last().Err))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}
