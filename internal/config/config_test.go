package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERPAPI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30, cfg.Analytics.DefaultWindowDays)
	require.Equal(t, 20, cfg.Analytics.AlertIDCap)
	require.Equal(t, 40, cfg.Analytics.SnippetTrail)
	require.Equal(t, "adintel", cfg.NATS.SubjectPrefix)
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERPAPI_TIMEOUT", "15s")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 15*time.Second, cfg.SerpAPI.Timeout)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CorsOrigins)
}

func TestLoadRequiresAPIKeyOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERPAPI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsWindowOutOfRange(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("ANALYTICS_DEFAULT_WINDOW_DAYS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestConnString(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Database: "adintel", SSLMode: "disable"}
	require.Equal(t, "postgres://u:p@db:5433/adintel?sslmode=disable", c.ConnString())
}
