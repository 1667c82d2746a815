package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Components  map[string]string `json:"components"`
}

// HealthDependencies lists the backing services probed by the health endpoint.
// Nil entries are reported as disabled.
type HealthDependencies struct {
	DB    *gorm.DB
	Redis *redis.Client
	NATS  *nats.Conn
}

// HealthCheck returns a handler that reports application and dependency health.
// Only the database is critical; cache and bus failures degrade the status.
func HealthCheck(cfg config.Config, deps HealthDependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
		defer cancel()

		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Components:  map[string]string{},
		}

		payload.Components["database"] = probeDatabase(ctx, deps.DB)
		payload.Components["redis"] = probeRedis(ctx, deps.Redis)
		payload.Components["nats"] = probeNATS(deps.NATS)

		if payload.Components["database"] == "down" {
			payload.Status = "unavailable"
			return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, "service unavailable", payload)
		}
		if payload.Components["redis"] == "down" || payload.Components["nats"] == "down" {
			payload.Status = "degraded"
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

func probeDatabase(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return "disabled"
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return "down"
	}
	return "up"
}

func probeRedis(ctx context.Context, client *redis.Client) string {
	if client == nil {
		return "disabled"
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return "down"
	}
	return "up"
}

func probeNATS(conn *nats.Conn) string {
	if conn == nil {
		return "disabled"
	}
	if !conn.IsConnected() {
		return "down"
	}
	return "up"
}
