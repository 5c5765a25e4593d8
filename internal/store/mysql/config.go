package mysql

import (
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"
	"github.com/loykin/stepmigrate/internal/constants"
)

type Config struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
}

// BuildDSN prefers an explicit DSN; otherwise it is assembled with the
// driver's own formatter when a host is provided.
func (c *Config) BuildDSN() string {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn
	}
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return ""
	}
	port := c.Port
	if port == 0 {
		port = constants.DefaultMySQLPort
	}

	cfg := driver.NewConfig()
	cfg.User = strings.TrimSpace(c.User)
	cfg.Passwd = strings.TrimSpace(c.Password)
	cfg.DBName = strings.TrimSpace(c.DBName)
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"dsn": c.BuildDSN(),
	}
}
