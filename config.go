package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultBatchSize  = 1000
	maxDefaultWorkers = 8
)

// Config mirrors the TOML migration file.
type Config struct {
	Source          EndpointConfig    `toml:"source"`
	Target          EndpointConfig    `toml:"target"`
	ExcludeTables   []string          `toml:"exclude_tables"`
	TableOrder      []string          `toml:"table_order"`
	EnumDefaults    map[string]string `toml:"enum_defaults"`
	BatchSize       int               `toml:"batch_size"`
	Workers         int               `toml:"workers"`
	TruncateStrings bool              `toml:"truncate_strings"`
}

// EndpointConfig names one side of the migration. Type is optional for
// sources (it can be detected from the DSN or file), required when detection
// is ambiguous. DSN and Path are mutually exclusive.
type EndpointConfig struct {
	Type string `toml:"type"`
	DSN  string `toml:"dsn"`
	Path string `toml:"path"`
}

// EndpointSpec is a resolved endpoint: dialect, location, and whether the
// location is an offline dump rather than a live database.
type EndpointSpec struct {
	Kind     Dialect
	Location string
	IsDump   bool
}

// MigrationRequest is the fully validated input to a run.
type MigrationRequest struct {
	Source          EndpointSpec
	Target          EndpointSpec
	ExcludeTables   []string
	TableOrder      []string
	EnumDefaults    map[string]string
	BatchSize       int
	Workers         int
	TruncateStrings bool
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, validationErrorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// buildRequest validates the config and resolves both endpoints.
func buildRequest(cfg *Config) (*MigrationRequest, error) {
	src, err := resolveEndpoint(cfg.Source, "source", true)
	if err != nil {
		return nil, err
	}
	tgt, err := resolveEndpoint(cfg.Target, "target", false)
	if err != nil {
		return nil, err
	}
	if src.Kind == tgt.Kind && !src.IsDump && src.Location == tgt.Location {
		return nil, validationErrorf("source and target are the same database")
	}

	if err := checkOrderExcludeOverlap(cfg.TableOrder, cfg.ExcludeTables); err != nil {
		return nil, err
	}

	req := &MigrationRequest{
		Source:          src,
		Target:          tgt,
		ExcludeTables:   cfg.ExcludeTables,
		TableOrder:      cfg.TableOrder,
		EnumDefaults:    cfg.EnumDefaults,
		BatchSize:       cfg.BatchSize,
		Workers:         cfg.Workers,
		TruncateStrings: cfg.TruncateStrings,
	}
	if req.EnumDefaults == nil {
		req.EnumDefaults = map[string]string{}
	}
	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}
	if req.Workers <= 0 {
		req.Workers = runtime.NumCPU()
		if req.Workers > maxDefaultWorkers {
			req.Workers = maxDefaultWorkers
		}
	}
	// An explicit order is a promise about sequencing; parallel levels would
	// break it.
	if len(req.TableOrder) > 0 {
		req.Workers = 1
	}
	return req, nil
}

func checkOrderExcludeOverlap(order, exclude []string) error {
	excluded := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		excluded[t] = true
	}
	for _, t := range order {
		if excluded[t] {
			return validationErrorf("table %q appears in both table_order and exclude_tables", t)
		}
	}
	return nil
}

func resolveEndpoint(ep EndpointConfig, role string, allowDump bool) (EndpointSpec, error) {
	if ep.DSN != "" && ep.Path != "" {
		return EndpointSpec{}, validationErrorf("%s: dsn and path are mutually exclusive", role)
	}
	if ep.DSN == "" && ep.Path == "" {
		return EndpointSpec{}, validationErrorf("%s: one of dsn or path is required", role)
	}

	explicit, err := parseEndpointType(ep.Type)
	if err != nil {
		return EndpointSpec{}, validationErrorf("%s: %v", role, err)
	}

	if ep.DSN != "" {
		kind := explicit
		if kind == "" {
			kind = dialectFromLocation(ep.DSN)
		}
		if kind == "" {
			return EndpointSpec{}, validationErrorf(
				"%s: cannot detect database type from dsn, set %s.type", role, role)
		}
		return EndpointSpec{Kind: kind, Location: ep.DSN}, nil
	}

	// Path endpoint: a SQLite database file or a SQL dump.
	spec := EndpointSpec{Location: ep.Path}
	switch strings.ToLower(filepath.Ext(ep.Path)) {
	case ".sql", ".dump":
		spec.IsDump = true
		spec.Kind = explicit // may stay empty, detected from content
	case ".db", ".sqlite", ".sqlite3":
		spec.Kind = DialectSQLite
		if explicit != "" && explicit != DialectSQLite {
			return EndpointSpec{}, validationErrorf(
				"%s: %s.type %q conflicts with database file %s", role, role, ep.Type, ep.Path)
		}
	default:
		if explicit == DialectSQLite {
			spec.Kind = DialectSQLite
		} else if explicit != "" {
			spec.IsDump = true
			spec.Kind = explicit
		} else {
			return EndpointSpec{}, validationErrorf(
				"%s: cannot tell a dump from a database at %s, set %s.type", role, ep.Path, role)
		}
	}

	if spec.IsDump {
		if !allowDump {
			return EndpointSpec{}, validationErrorf("%s: a dump file cannot be a migration target", role)
		}
		if _, err := os.Stat(ep.Path); err != nil {
			return EndpointSpec{}, validationErrorf("%s: %v", role, err)
		}
	}
	return spec, nil
}

// parseEndpointType is parseDialect plus the empty string, which means
// "detect".
func parseEndpointType(s string) (Dialect, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return parseDialect(s)
}

// redactedLocation hides DSN credentials for logging.
func redactedLocation(ep EndpointSpec) string {
	u, err := url.Parse(ep.Location)
	if err != nil || u.User == nil {
		return ep.Location
	}
	u.User = url.User(u.User.Username())
	return u.Redacted()
}
