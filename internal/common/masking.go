package common

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const maskedValue = "***MASKED***"

// keyword DSNs: host=... password=...
var keywordPasswordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*('[^']*'|[^\s]+)`)

// MaskDSN hides the password portion of a database connection string so it can be logged.
func MaskDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	if s == "" {
		return s
	}
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		if u.User == nil {
			return s
		}
		if _, hasPass := u.User.Password(); !hasPass {
			return s
		}
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
		return strings.Replace(u.String(), "xxxxx", maskedValue, 1)
	}
	if keywordPasswordRegex.MatchString(s) {
		return keywordPasswordRegex.ReplaceAllString(s, "${1}="+maskedValue)
	}
	// the driver splits user:pass at the last '@', so a password may contain '@'
	if cfg, err := mysql.ParseDSN(s); err == nil && cfg.Passwd != "" {
		cfg.Passwd = maskedValue
		return cfg.FormatDSN()
	}
	return s
}
