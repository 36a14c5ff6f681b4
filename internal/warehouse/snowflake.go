package warehouse

import (
	"fmt"
	"strings"

	"github.com/snowflakedb/gosnowflake"
)

type SnowflakeConfig struct {
	Account       string
	User          string
	Token         string
	Authenticator string
	Warehouse     string
	Database      string
	Schema        string
	Role          string
	QueryTag      string
}

// DSN builds a gosnowflake DSN. A programmatic access token is sent as the password
// unless Authenticator is "oauth", in which case it is sent as an OAuth token.
func (c SnowflakeConfig) DSN() (string, error) {
	if strings.TrimSpace(c.Account) == "" {
		return "", fmt.Errorf("snowflake account is required")
	}
	if strings.TrimSpace(c.User) == "" {
		return "", fmt.Errorf("snowflake user is required")
	}
	if strings.TrimSpace(c.Token) == "" {
		return "", fmt.Errorf("snowflake token is required")
	}

	sfConfig := &gosnowflake.Config{
		Account:   strings.TrimSpace(c.Account),
		User:      strings.TrimSpace(c.User),
		Warehouse: strings.TrimSpace(c.Warehouse),
		Database:  strings.TrimSpace(c.Database),
		Schema:    strings.TrimSpace(c.Schema),
		Role:      strings.TrimSpace(c.Role),
	}
	if strings.EqualFold(strings.TrimSpace(c.Authenticator), "oauth") {
		sfConfig.Authenticator = gosnowflake.AuthTypeOAuth
		sfConfig.Token = strings.TrimSpace(c.Token)
	} else {
		sfConfig.Password = strings.TrimSpace(c.Token)
	}
	if tag := strings.TrimSpace(c.QueryTag); tag != "" {
		sfConfig.Params = map[string]*string{"QUERY_TAG": &tag}
	}

	dsn, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("build snowflake dsn: %w", err)
	}
	return dsn, nil
}
