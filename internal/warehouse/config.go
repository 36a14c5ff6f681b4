package warehouse

import (
	"time"

	"github.com/sqlanalyst/sqlanalyst/internal/config"
)

// ConfigFrom maps the warehouse section of the service config onto a pool config.
func ConfigFrom(cfg config.WarehouseConfig) Config {
	return Config{
		Driver: cfg.Driver,
		DSN:    cfg.DSN,
		Snowflake: SnowflakeConfig{
			Account:       cfg.Snowflake.Account,
			User:          cfg.Snowflake.User,
			Token:         cfg.Snowflake.Token,
			Authenticator: cfg.Snowflake.Authenticator,
			Warehouse:     cfg.Snowflake.Warehouse,
			Database:      cfg.Snowflake.Database,
			Schema:        cfg.Snowflake.Schema,
			Role:          cfg.Snowflake.Role,
			QueryTag:      cfg.Snowflake.QueryTag,
		},
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     10 * time.Second,
	}
}
