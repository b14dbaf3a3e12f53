// Package config holds runtime configuration: defaults, environment
// overrides, and validation. The resulting Config is passed explicitly to the
// pipeline; nothing reads paths from package globals.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DetectorKind selects the face detection backend.
type DetectorKind string

const (
	DetectorPigo   DetectorKind = "pigo"   // In-process cascade (default).
	DetectorWorker DetectorKind = "worker" // External detector process.
)

// Config holds all runtime settings.
type Config struct {
	// Paths.
	InputList  string // Default: {root}/video_ids.txt.
	TempDir    string // Default: {root}/temp_downloads. Removed at the end of a run.
	OutputDir  string // Default: {root}/output.
	LedgerPath string // Default: {root}/output/metadata.csv.

	// CLI settings.
	Workers       int     // Default: 4.
	MinConfidence float64 // Default: 0.8.
	ShowPreview   bool

	// Face detection.
	Detector       DetectorKind
	CascadePath    string  // pigo cascade file. Empty uses the embedded facefinder cascade.
	QualityCeiling float64 // pigo Q that maps to score 1.0. Default: 10.
	WorkerCommand  string  // Command line of the external detector.

	// FetchRate caps how many downloads start per second; 0 means unlimited.
	FetchRate float64

	// Optional sinks; empty disables them.
	DatabaseURL string
	MinIO       MinIO
	Kafka       Kafka
}

// MinIO configures clip uploads.
type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// Enabled reports whether uploads are configured.
func (m MinIO) Enabled() bool { return m.Endpoint != "" }

// Kafka configures clip events.
type Kafka struct {
	Brokers string
	Topic   string
}

// Enabled reports whether events are configured.
func (k Kafka) Enabled() bool { return k.Brokers != "" }

// Default returns a Config rooted at root.
func Default(root string) Config {
	out := filepath.Join(root, "output")
	return Config{
		InputList:      filepath.Join(root, "video_ids.txt"),
		TempDir:        filepath.Join(root, "temp_downloads"),
		OutputDir:      out,
		LedgerPath:     filepath.Join(out, "metadata.csv"),
		Workers:        4,
		MinConfidence:  0.8,
		Detector:       DetectorPigo,
		QualityCeiling: 10,
		MinIO:          MinIO{Bucket: "facecrop-clips"},
		Kafka:          Kafka{Topic: "facecrop.clips"},
	}
}

// FromEnv builds a Config from defaults plus environment overrides. getenv
// is usually os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	root := getenv("FACECROP_ROOT")
	if root == "" {
		root = "."
	}
	c := Default(root)

	setString(&c.InputList, getenv("FACECROP_INPUT_LIST"))
	setString(&c.TempDir, getenv("FACECROP_TEMP_DIR"))
	setString(&c.OutputDir, getenv("FACECROP_OUTPUT_DIR"))
	if v := getenv("FACECROP_LEDGER"); v != "" {
		c.LedgerPath = v
	} else if getenv("FACECROP_OUTPUT_DIR") != "" {
		c.LedgerPath = filepath.Join(c.OutputDir, "metadata.csv")
	}

	if v := getenv("FACECROP_DETECTOR"); v != "" {
		c.Detector = DetectorKind(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(&c.CascadePath, getenv("FACECROP_CASCADE"))
	setString(&c.WorkerCommand, getenv("FACECROP_WORKER_CMD"))

	var err error
	if c.QualityCeiling, err = floatEnv(getenv, "FACECROP_PIGO_CEILING", c.QualityCeiling); err != nil {
		return c, err
	}
	if c.FetchRate, err = floatEnv(getenv, "FETCH_RATE", 0); err != nil {
		return c, err
	}

	c.DatabaseURL = databaseURL(getenv)

	c.MinIO.Endpoint = getenv("MINIO_ENDPOINT")
	c.MinIO.AccessKey = getenv("MINIO_ACCESS_KEY")
	c.MinIO.SecretKey = getenv("MINIO_SECRET_KEY")
	setString(&c.MinIO.Bucket, getenv("MINIO_BUCKET"))
	if v := getenv("MINIO_SECURE"); v != "" {
		if c.MinIO.Secure, err = strconv.ParseBool(v); err != nil {
			return c, fmt.Errorf("invalid MINIO_SECURE %q: %w", v, err)
		}
	}

	c.Kafka.Brokers = getenv("KAFKA_BROKERS")
	setString(&c.Kafka.Topic, getenv("KAFKA_TOPIC"))

	return c, nil
}

// Load is FromEnv over the process environment.
func Load() (Config, error) {
	return FromEnv(os.Getenv)
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// POSTGRES_* variables. No host means the catalog is disabled.
func databaseURL(getenv func(string) string) string {
	if v := getenv("DATABASE_URL"); v != "" {
		return v
	}
	host := getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := getenv("POSTGRES_USER")
	pass := getenv("POSTGRES_PASSWORD")
	name := getenv("POSTGRES_DB")
	port := getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min-confidence must be in (0, 1], got %g", c.MinConfidence)
	}
	switch c.Detector {
	case DetectorPigo:
		if c.QualityCeiling <= 0 {
			return errors.New("FACECROP_PIGO_CEILING must be positive")
		}
	case DetectorWorker:
		if strings.TrimSpace(c.WorkerCommand) == "" {
			return errors.New("FACECROP_WORKER_CMD is required for the worker detector")
		}
	default:
		return fmt.Errorf("invalid detector %q (use 'pigo' or 'worker')", c.Detector)
	}
	if c.FetchRate < 0 {
		return errors.New("FETCH_RATE must not be negative")
	}
	if c.InputList == "" || c.TempDir == "" || c.OutputDir == "" || c.LedgerPath == "" {
		return errors.New("input list, temp, output, and ledger paths must be set")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func floatEnv(getenv func(string) string, key string, def float64) (float64, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
