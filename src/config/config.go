package config

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var Config = Default()

func Default() EduConfig {
	return EduConfig{
		Env:         Dev,
		LogLevel:    zerolog.InfoLevel,
		MetricsAddr: "localhost:9090",
		Postgres: PostgresConfig{
			User:     "edu",
			Password: "password",
			Hostname: "localhost",
			Port:     5432,
			DbName:   "edu",
			LogLevel: tracelog.LogLevelWarn,
			MinConn:  2,
			MaxConn:  10,
		},
		Redis: RedisConfig{
			KeyPrefix: "edu:publication:",
		},
		Mirror: MirrorConfig{
			Region: "us-east-1",
		},
		Content: ContentConfig{
			BotAccount:            "admin",
			MaximumSlugSize:       150,
			MaxTitleLength:        80,
			MaxTreeDepth:          2,
			BuildPDFWhenPublished: true,
			PDFTimeout:            time.Minute,
			RepoPrivatePath:       "./contents-private",
			RepoPublicPath:        "./contents-public",
			ExtraContentsDirname:  "extra_contents",
			Workers:               4,
		},
	}
}

/*
Overlays values from a config file (edu.yaml in the working directory or
/etc/edu, or the file given explicitly) and from EDU_* environment variables
onto the defaults. Nested keys use underscores in the environment, e.g.
EDU_CONTENT_REPOPUBLICPATH.

A missing config file is not an error.
*/
func Load(path string) error {
	v := viper.New()
	v.SetEnvPrefix("edu")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("edu")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edu")
	}

	cfg := Default()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	cfg.Env = Environment(v.GetString("env"))
	if lvl, err := zerolog.ParseLevel(v.GetString("loglevel")); err == nil {
		cfg.LogLevel = lvl
	}
	cfg.MetricsAddr = v.GetString("metricsaddr")

	cfg.Postgres.User = v.GetString("postgres.user")
	cfg.Postgres.Password = v.GetString("postgres.password")
	cfg.Postgres.Hostname = v.GetString("postgres.hostname")
	cfg.Postgres.Port = v.GetInt("postgres.port")
	cfg.Postgres.DbName = v.GetString("postgres.dbname")
	if lvl, err := tracelog.LogLevelFromString(v.GetString("postgres.loglevel")); err == nil {
		cfg.Postgres.LogLevel = lvl
	}
	cfg.Postgres.MinConn = v.GetInt32("postgres.minconn")
	cfg.Postgres.MaxConn = v.GetInt32("postgres.maxconn")

	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Redis.KeyPrefix = v.GetString("redis.keyprefix")

	cfg.Mirror.Endpoint = v.GetString("mirror.endpoint")
	cfg.Mirror.Region = v.GetString("mirror.region")
	cfg.Mirror.Bucket = v.GetString("mirror.bucket")
	cfg.Mirror.Key = v.GetString("mirror.key")
	cfg.Mirror.Secret = v.GetString("mirror.secret")

	cfg.Content.BotAccount = v.GetString("content.botaccount")
	cfg.Content.MaximumSlugSize = v.GetInt("content.maximumslugsize")
	cfg.Content.MaxTitleLength = v.GetInt("content.maxtitlelength")
	cfg.Content.MaxTreeDepth = v.GetInt("content.maxtreedepth")
	cfg.Content.BuildPDFWhenPublished = v.GetBool("content.buildpdfwhenpublished")
	cfg.Content.ChromiumBin = v.GetString("content.chromiumbin")
	cfg.Content.PDFTimeout = v.GetDuration("content.pdftimeout")
	cfg.Content.RepoPrivatePath = v.GetString("content.repoprivatepath")
	cfg.Content.RepoPublicPath = v.GetString("content.repopublicpath")
	cfg.Content.ExtraContentsDirname = v.GetString("content.extracontentsdirname")
	cfg.Content.Workers = v.GetInt("content.workers")

	Config = cfg
	return nil
}

// Registers every key with viper so AutomaticEnv can find it even when the
// config file does not mention it.
func bindDefaults(v *viper.Viper, cfg EduConfig) {
	v.SetDefault("env", string(cfg.Env))
	v.SetDefault("loglevel", cfg.LogLevel.String())
	v.SetDefault("metricsaddr", cfg.MetricsAddr)

	v.SetDefault("postgres.user", cfg.Postgres.User)
	v.SetDefault("postgres.password", cfg.Postgres.Password)
	v.SetDefault("postgres.hostname", cfg.Postgres.Hostname)
	v.SetDefault("postgres.port", cfg.Postgres.Port)
	v.SetDefault("postgres.dbname", cfg.Postgres.DbName)
	v.SetDefault("postgres.loglevel", cfg.Postgres.LogLevel.String())
	v.SetDefault("postgres.minconn", cfg.Postgres.MinConn)
	v.SetDefault("postgres.maxconn", cfg.Postgres.MaxConn)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.keyprefix", cfg.Redis.KeyPrefix)

	v.SetDefault("mirror.endpoint", cfg.Mirror.Endpoint)
	v.SetDefault("mirror.region", cfg.Mirror.Region)
	v.SetDefault("mirror.bucket", cfg.Mirror.Bucket)
	v.SetDefault("mirror.key", cfg.Mirror.Key)
	v.SetDefault("mirror.secret", cfg.Mirror.Secret)

	v.SetDefault("content.botaccount", cfg.Content.BotAccount)
	v.SetDefault("content.maximumslugsize", cfg.Content.MaximumSlugSize)
	v.SetDefault("content.maxtitlelength", cfg.Content.MaxTitleLength)
	v.SetDefault("content.maxtreedepth", cfg.Content.MaxTreeDepth)
	v.SetDefault("content.buildpdfwhenpublished", cfg.Content.BuildPDFWhenPublished)
	v.SetDefault("content.chromiumbin", cfg.Content.ChromiumBin)
	v.SetDefault("content.pdftimeout", cfg.Content.PDFTimeout)
	v.SetDefault("content.repoprivatepath", cfg.Content.RepoPrivatePath)
	v.SetDefault("content.repopublicpath", cfg.Content.RepoPublicPath)
	v.SetDefault("content.extracontentsdirname", cfg.Content.ExtraContentsDirname)
	v.SetDefault("content.workers", cfg.Content.Workers)
}
