package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/stowbase"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DBDIR", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != "." {
		t.Errorf("Dir = %q, want .", cfg.Dir)
	}
	if cfg.Ext != stowbase.DefaultExt || cfg.Algo != stowbase.DefaultAlgo {
		t.Errorf("Ext, Algo = %q, %q", cfg.Ext, cfg.Algo)
	}
	if cfg.MaxFilesPerDir != 256 || cfg.MaxBytes != stowbase.DefaultMaxBytes || cfg.Workers != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Stow.WriteLog {
		t.Errorf("write log off by default")
	}
}

func TestLoadEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DBDIR", "/from/dbdir")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != "/from/dbdir" {
		t.Errorf("Dir = %q, want DBDIR", cfg.Dir)
	}

	t.Setenv("STOWBASE_DIR", "/from/env")
	t.Setenv("STOWBASE_MAX_FILES_PER_DIR", "1024")
	t.Setenv("STOWBASE_ALGO", "sha256")
	t.Setenv("STOWBASE_LOGGING_FORMAT", "json")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != "/from/env" || cfg.MaxFilesPerDir != 1024 || cfg.Algo != "sha256" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
	sc := cfg.Store()
	if sc.Dir != "/from/env" || sc.MaxFilesPerDir != 1024 {
		t.Errorf("Store() = %+v", sc)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := `
dir: /srv/objects
ext: .bin
max_files_per_dir: 512
cache_size: 100
logging:
  level: DEBUG
stow:
  dirs: [/srv/in, /srv/in2]
  write_log: false
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != "/srv/objects" || cfg.Ext != ".bin" || cfg.MaxFilesPerDir != 512 || cfg.CacheSize != 100 {
		t.Errorf("file not applied: %+v", cfg)
	}
	if len(cfg.Stow.Dirs) != 2 || cfg.Stow.WriteLog {
		t.Errorf("Stow = %+v", cfg.Stow)
	}
	if cfg.Algo != stowbase.DefaultAlgo {
		t.Errorf("Algo = %q", cfg.Algo)
	}
}

func TestLoadInvalid(t *testing.T) {
	chdir(t, t.TempDir())
	cases := map[string]string{
		"STOWBASE_MAX_FILES_PER_DIR": "100",
		"STOWBASE_EXT":               "obj",
		"STOWBASE_ALGO":              "crc32",
		"STOWBASE_LOGGING_LEVEL":     "chatty",
		"STOWBASE_WORKERS":           "-1",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load("")
			if err == nil {
				t.Fatalf("%s=%s accepted", key, val)
			}
			if !strings.Contains(err.Error(), "validation failed") {
				t.Errorf("unexpected error: %v", err)
			}
			if !errors.Is(err, stowbase.ErrInvalid) {
				t.Errorf("not ErrInvalid: %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("missing explicit config file accepted")
	}
}

func TestLoggingApply(t *testing.T) {
	t.Setenv("DEBUG", "")
	defer log.SetLevel(log.GetLevel())
	if err := (LoggingConfig{Level: "WARN", Format: "text"}).Apply(); err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.TextFormatter); !ok {
		t.Errorf("formatter %T", log.StandardLogger().Formatter)
	}
	if !log.StandardLogger().ReportCaller {
		t.Error("caller not reported")
	}
	if err := (LoggingConfig{Level: "info", Format: "json"}).Apply(); err != nil {
		t.Fatal(err)
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("formatter %T", log.StandardLogger().Formatter)
	}
	t.Setenv("DEBUG", "1")
	if err := (LoggingConfig{Level: "error", Format: "text"}).Apply(); err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("DEBUG=1 ignored: %v", log.GetLevel())
	}
	if err := (LoggingConfig{Level: "loud", Format: "text"}).Apply(); !errors.Is(err, stowbase.ErrInvalid) {
		t.Errorf("bad level: %v", err)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}
