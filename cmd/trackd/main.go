// Package main provides trackd, the aircraft tracking snapshot service.
//
// trackd ingests hourly readsb-hist snapshot files for one day, flattens
// them into an aircraft dimension table and a position time series, and
// serves paginated read endpoints plus per-aircraft statistics. Raw files
// live in a blob store (local directory or S3 bucket); the derived
// relations live in SQLite.
//
// Usage:
//
//	trackd [options]
//
// Options:
//
//	-port N             HTTP port (default: 8080, env: TRACK_PORT)
//	-day YYYYMMDD       day partition to ingest (default: 20231101, env: TRACK_DAY)
//	-source-url URL     remote snapshot source root (env: TRACK_SOURCE_URL)
//	-store TYPE         raw file store: local or s3 (default: local, env: TRACK_STORE)
//	-data-dir DIR       root directory for the local store (default: data/raw, env: TRACK_DATA_DIR)
//	-s3-bucket BUCKET   bucket for the s3 store (env: TRACK_S3_BUCKET)
//	-s3-prefix PREFIX   key prefix inside the bucket (default: raw, env: TRACK_S3_PREFIX)
//	-db PATH            SQLite path for the derived store (default: data/prepared/aircraft.db, env: TRACK_DB)
//	-hr-db DSN          PostgreSQL DSN for the HR dataset (optional, env: TRACK_HR_DB)
//	-nats-url URL       NATS server for run events (optional, env: TRACK_NATS_URL)
//	-redis-addr ADDR    Redis server for the stats cache (optional, env: TRACK_REDIS_ADDR)
//	-clickhouse HOST:PORT  ClickHouse server for the position archive (optional, env: TRACK_CLICKHOUSE)
//
// API Endpoints:
//
//	GET  /api/v1/health
//	POST /api/v1/aircraft/download?file_limit=N
//	POST /api/v1/aircraft/prepare
//	GET  /api/v1/aircraft/?num_results=&page=
//	GET  /api/v1/aircraft/{icao}/positions?num_results=&page=
//	GET  /api/v1/aircraft/{icao}/stats
//	POST /api/v1/hr/db/init
//	POST /api/v1/hr/db/seed
//	GET  /api/v1/hr/departments/
//	GET  /api/v1/hr/employees/?page=&per_page=
//	GET  /api/v1/hr/departments/{id}/employees
//	GET  /api/v1/hr/departments/{id}/stats
//	GET  /api/v1/hr/employees/{id}/salary-history
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"adsb_pipeline/internal/api"
	"adsb_pipeline/internal/archive"
	"adsb_pipeline/internal/blobstore"
	"adsb_pipeline/internal/cache"
	"adsb_pipeline/internal/events"
	"adsb_pipeline/internal/fetch"
	"adsb_pipeline/internal/hr"
	"adsb_pipeline/internal/loader"
	"adsb_pipeline/internal/store"
)

func main() {
	// Best-effort .env load; environment and flags win.
	_ = godotenv.Load()

	port := flag.Int("port", envOrDefaultInt("TRACK_PORT", 8080), "HTTP port")
	day := flag.String("day", envOrDefault("TRACK_DAY", "20231101"), "day partition (YYYYMMDD)")
	sourceURL := flag.String("source-url",
		envOrDefault("TRACK_SOURCE_URL", "https://samples.adsbexchange.com/readsb-hist"),
		"remote snapshot source root")
	storeType := flag.String("store", envOrDefault("TRACK_STORE", "local"), "raw file store: local or s3")
	dataDir := flag.String("data-dir", envOrDefault("TRACK_DATA_DIR", filepath.Join("data", "raw")), "local store root")
	s3Bucket := flag.String("s3-bucket", envOrDefault("TRACK_S3_BUCKET", ""), "S3 bucket for the s3 store")
	s3Prefix := flag.String("s3-prefix", envOrDefault("TRACK_S3_PREFIX", "raw"), "key prefix inside the bucket")
	dbPath := flag.String("db", envOrDefault("TRACK_DB", filepath.Join("data", "prepared", "aircraft.db")), "SQLite path for the derived store")
	hrDSN := flag.String("hr-db", envOrDefault("TRACK_HR_DB", ""), "PostgreSQL DSN for the HR dataset (optional)")
	natsURL := flag.String("nats-url", envOrDefault("TRACK_NATS_URL", ""), "NATS server for run events (optional)")
	redisAddr := flag.String("redis-addr", envOrDefault("TRACK_REDIS_ADDR", ""), "Redis server for the stats cache (optional)")
	chAddr := flag.String("clickhouse", envOrDefault("TRACK_CLICKHOUSE", ""), "ClickHouse host:port for the position archive (optional)")

	flag.Parse()

	if err := run(*port, *day, *sourceURL, *storeType, *dataDir, *s3Bucket, *s3Prefix,
		*dbPath, *hrDSN, *natsURL, *redisAddr, *chAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(port int, day, sourceURL, storeType, dataDir, s3Bucket, s3Prefix,
	dbPath, hrDSN, natsURL, redisAddr, chAddr string) error {
	ctx := context.Background()

	dayTime, err := time.Parse("20060102", day)
	if err != nil {
		return fmt.Errorf("invalid -day %q: %w", day, err)
	}

	var blobs blobstore.Store
	switch storeType {
	case "local":
		blobs = blobstore.NewFS(dataDir)
	case "s3":
		if s3Bucket == "" {
			return fmt.Errorf("-s3-bucket is required with -store s3")
		}
		blobs, err = blobstore.NewS3(s3Bucket, s3Prefix)
		if err != nil {
			return fmt.Errorf("open s3 store: %w", err)
		}
	default:
		return fmt.Errorf("unknown -store %q (want local or s3)", storeType)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open derived store: %w", err)
	}
	defer func() { _ = st.Close() }()

	var hrDB *hr.DB
	if hrDSN != "" {
		hrDB, err = hr.Open(hrDSN)
		if err != nil {
			return fmt.Errorf("open hr database: %w", err)
		}
		defer func() { _ = hrDB.Close() }()
	}

	var publisher *events.Publisher
	if natsURL != "" {
		publisher, err = events.New(natsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer publisher.Close()
	}

	var statsCache *cache.StatsCache
	if redisAddr != "" {
		statsCache, err = cache.New(redisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = statsCache.Close() }()
	}

	var archiver loader.Archiver
	if chAddr != "" {
		host, portStr, err := net.SplitHostPort(chAddr)
		if err != nil {
			return fmt.Errorf("invalid -clickhouse %q: %w", chAddr, err)
		}
		chPort, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid -clickhouse port %q: %w", portStr, err)
		}
		ch, err := archive.Open(ctx, archive.Config{
			Host:     host,
			Port:     chPort,
			Database: envOrDefault("TRACK_CLICKHOUSE_DATABASE", "tracking"),
			User:     envOrDefault("TRACK_CLICKHOUSE_USER", "default"),
			Password: envOrDefault("TRACK_CLICKHOUSE_PASSWORD", ""),
		})
		if err != nil {
			return fmt.Errorf("open clickhouse archive: %w", err)
		}
		defer func() { _ = ch.Close() }()
		archiver = ch
	}

	partition := fetch.Partition(dayTime)
	server := api.New(api.Config{
		Fetcher:   fetch.New(blobs, fetch.Config{BaseURL: sourceURL, Day: dayTime, Timeout: 30 * time.Second}),
		Loader:    loader.New(blobs, st, partition, archiver),
		Store:     st,
		HR:        hrDB,
		Events:    publisher,
		Cache:     statsCache,
		Partition: partition,
		Port:      port,
	})

	return server.Run()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
