package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Bool(name string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// Duration accepts Go duration strings ("90s", "5m") or a bare integer number of seconds.
func Duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// Loader reads the same values but records defaults at debug level.
type Loader struct {
	log *logger.Logger
}

func NewLoader(log *logger.Logger) *Loader {
	return &Loader{log: log}
}

func (l *Loader) String(name, def string) string {
	if strings.TrimSpace(os.Getenv(name)) == "" {
		l.defaulted(name, def)
	}
	return String(name, def)
}

func (l *Loader) Int(name string, def int) int {
	if strings.TrimSpace(os.Getenv(name)) == "" {
		l.defaulted(name, def)
	}
	return Int(name, def)
}

func (l *Loader) Bool(name string, def bool) bool {
	if strings.TrimSpace(os.Getenv(name)) == "" {
		l.defaulted(name, def)
	}
	return Bool(name, def)
}

func (l *Loader) Duration(name string, def time.Duration) time.Duration {
	if strings.TrimSpace(os.Getenv(name)) == "" {
		l.defaulted(name, def.String())
	}
	return Duration(name, def)
}

func (l *Loader) defaulted(name string, def interface{}) {
	if l == nil || l.log == nil {
		return
	}
	l.log.Debug("Environment variable not set, using default", "key", name, "default", def)
}
