package postgresql

import (
	"cmp"
	"fmt"
	"net/url"
	"strings"

	"github.com/loykin/stepmigrate/internal/constants"
)

type Config struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// BuildDSN prefers an explicit DSN; otherwise it is assembled from components
// when a host is provided.
func (p *Config) BuildDSN() string {
	if dsn := strings.TrimSpace(p.DSN); dsn != "" {
		return dsn
	}
	host := strings.TrimSpace(p.Host)
	if host == "" {
		return ""
	}
	port := p.Port
	if port == 0 {
		port = constants.DefaultPostgresPort
	}
	ssl := cmp.Or(strings.TrimSpace(p.SSLMode), constants.DefaultPostgresSSLMode)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(strings.TrimSpace(p.User), strings.TrimSpace(p.Password)),
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + strings.TrimSpace(p.DBName),
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}
	return u.String()
}

func (p *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"dsn": p.BuildDSN(),
	}
}
