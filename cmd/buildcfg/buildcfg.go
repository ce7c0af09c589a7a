package buildcfg

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

// OfflineConfig drives the offline cache proxy: where the data service
// lives, which port the proxy listens on, and where the durable
// pending-actions queue is stored.
type OfflineConfig struct {
	Port         string
	Upstream     string
	APIPrefix    string
	BackendHost  string
	CacheVersion string
	QueuePath    string
	ShellRoutes  []string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) *ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return &ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("db.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("db.master_dsn is required")
	}

	var slaveDSNs []string
	if slaves := cfg.GetString("db.slave_dsns"); slaves != "" {
		slaveDSNs = append(slaveDSNs, slaves)
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: time.Duration(cfg.GetInt("db.conn_max_lifetime_seconds")) * time.Second,
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}

	log.Info().Str("master", masterDSN).Int("slaves", len(slaveDSNs)).Msg("DB config built")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (*RabbitConfig, error) {
	url := cfg.GetString("rabbit.url")
	if url == "" {
		return nil, fmt.Errorf("rabbit.url is required")
	}

	rc := &RabbitConfig{
		Url:      url,
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Exchange == "" {
		rc.Exchange = "bailacheck.notifications"
	}
	if rc.Queue == "" {
		rc.Queue = "bailacheck.push"
	}

	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("RabbitMQ config built")
	return rc, nil
}

func BuildOfflineConfig(cfg *config.Config, log *zerolog.Logger) (*OfflineConfig, error) {
	upstream := cfg.GetString("offline.upstream")
	if upstream == "" {
		return nil, fmt.Errorf("offline.upstream is required")
	}

	oc := &OfflineConfig{
		Port:         cfg.GetString("offline.port"),
		Upstream:     upstream,
		APIPrefix:    cfg.GetString("offline.api_prefix"),
		BackendHost:  cfg.GetString("offline.backend_host"),
		CacheVersion: cfg.GetString("offline.cache_version"),
		QueuePath:    cfg.GetString("offline.queue_path"),
		ShellRoutes:  cfg.GetStringSlice("offline.shell_routes"),
	}
	if oc.Port == "" {
		oc.Port = "8090"
	}
	if oc.APIPrefix == "" {
		oc.APIPrefix = "/v1/"
	}
	if oc.CacheVersion == "" {
		oc.CacheVersion = "v1"
	}
	if oc.QueuePath == "" {
		oc.QueuePath = "pending_actions.db"
	}
	if len(oc.ShellRoutes) == 0 {
		oc.ShellRoutes = []string{"/", "/events-page", "/profile-page", "/offline", "/manifest.json"}
	}

	log.Info().Str("upstream", oc.Upstream).Str("version", oc.CacheVersion).Msg("offline proxy config built")
	return oc, nil
}
