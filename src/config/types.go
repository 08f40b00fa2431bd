package config

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type EduConfig struct {
	Env         Environment
	LogLevel    zerolog.Level
	MetricsAddr string
	Postgres    PostgresConfig
	Redis       RedisConfig
	Mirror      MirrorConfig
	Content     ContentConfig
}

type PostgresConfig struct {
	User     string
	Password string
	Hostname string
	Port     int
	DbName   string
	LogLevel tracelog.LogLevel
	MinConn  int32
	MaxConn  int32
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

// Publication locks go through Redis when an address is set. Otherwise locks
// only protect against concurrent operations inside one process.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Published contents are copied to this bucket after every publication when
// a bucket is set.
type MirrorConfig struct {
	Endpoint string
	Region   string
	Bucket   string
	Key      string
	Secret   string
}

func (c MirrorConfig) Enabled() bool {
	return c.Bucket != ""
}

type ContentConfig struct {
	// Username of the account that signs commits when nobody is logged in.
	BotAccount string

	MaximumSlugSize int
	MaxTitleLength  int

	// Deepest level a container may sit at. The root is level 0, so with the
	// default of 2 a content can hold parts, which hold chapters, which hold
	// extracts.
	MaxTreeDepth int

	BuildPDFWhenPublished bool

	// Chromium used to print PDFs. Empty means rod downloads one on first use.
	ChromiumBin string
	PDFTimeout  time.Duration

	RepoPrivatePath      string
	RepoPublicPath       string
	ExtraContentsDirname string

	// Number of contents processed at once by the bulk commands.
	Workers int
}
