package engine

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/logger"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// DataSourceName returns the driver DSN for cfg. An explicit cfg.DSN wins.
func DataSourceName(cfg config.EngineConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	switch cfg.Driver {
	case DriverPostgres:
		return postgresDSN(cfg), nil
	case DriverMySQL:
		return mysqlDSN(cfg), nil
	case DriverSQLite:
		return sqliteDSN(cfg), nil
	default:
		return "", nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "unsupported driver %q", cfg.Driver)
	}
}

func postgresDSN(cfg config.EngineConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	q := url.Values{}
	q.Set("client_encoding", "utf8")
	for k, v := range cfg.Params {
		q.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func mysqlDSN(cfg config.EngineConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	if len(cfg.Params) > 0 {
		mc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

func sqliteDSN(cfg config.EngineConfig) string {
	params := cfg.Params
	if len(params) == 0 {
		params = map[string]string{"_pragma": "busy_timeout(5000)"}
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return cfg.Database + "?" + q.Encode()
}

// Environment variable suffixes read by PostgresConfigFromEnv.
var postgresEnvVars = []string{"DRIVER", "USER", "PASS", "HOST", "PORT", "NAME"}

// PostgresConfigFromEnv builds a postgres engine config. Each setting comes
// from overrides (keyed by lower-cased suffix, e.g. "host"), then from the
// environment variable PREFIX_SUFFIX, then from the defaults
// postgres@localhost:5432/postgres with an empty password. prefix defaults
// to POSTGRES.
func PostgresConfigFromEnv(prefix string, overrides map[string]string) (config.EngineConfig, error) {
	if prefix == "" {
		prefix = "POSTGRES"
	}

	values := map[string]string{
		"DRIVER": DriverPostgres,
		"USER":   "postgres",
		"PASS":   "",
		"HOST":   "localhost",
		"PORT":   "5432",
		"NAME":   "postgres",
	}
	for _, key := range postgresEnvVars {
		if v, ok := overrides[strings.ToLower(key)]; ok {
			values[key] = v
			continue
		}
		if v, ok := os.LookupEnv(prefix + "_" + key); ok {
			values[key] = v
		}
	}

	port, err := strconv.Atoi(values["PORT"])
	if err != nil {
		return config.EngineConfig{}, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid port").
			WithDetail("port", values["PORT"])
	}

	logger.Debug("postgres engine config",
		zap.String("prefix", prefix),
		zap.String("host", values["HOST"]),
		zap.Int("port", port),
		zap.String("user", values["USER"]),
		zap.String("database", values["NAME"]))

	return config.EngineConfig{
		Driver:   values["DRIVER"],
		Host:     values["HOST"],
		Port:     port,
		User:     values["USER"],
		Password: values["PASS"],
		Database: values["NAME"],
	}, nil
}
