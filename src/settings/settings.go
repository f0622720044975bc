package settings

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Arguments struct {
	// The file path to the datafiles (catalog files and per-database stores)
	DataDir string `yaml:"datadir"`

	// Directory for log files. Empty means stdout only.
	LogDir string `yaml:"logdir"`

	// Path to an optional YAML config file. Flags passed on the command
	// line win over file values; defaulted flags do not.
	ConfigFile string `yaml:"-"`

	// the host name or IP address to listen on
	Host string `yaml:"host"`

	// the port number to listen on
	Port int `yaml:"port"`

	// Strongly verbose logging
	Verbose bool `yaml:"verbose"`

	Debug bool `yaml:"debug"`

	// Print log messages to screen as well as the log file
	PrintToScreen bool `yaml:"print_to_screen"`

	AuthEnabled bool `yaml:"auth_enabled"` // Enable authentication

	// Path to the encrypted user store file (only read when AuthEnabled)
	UsersFile string `yaml:"users_file"`

	// Base URL of the clipboard history service used to seed the
	// clipboard database. Empty disables seeding.
	ClipboardServiceURL string `yaml:"clipboard_service_url"`

	// Cron spec for the periodic descriptor statistics refresh.
	// Empty disables the job.
	StatsRefreshSpec string `yaml:"stats_refresh_spec"`

	Version string `yaml:"-"`
}

var (
	instance *Arguments
	once     sync.Once
)

// GetSettings returns the global settings instance. main binds flags
// directly onto it before anything else reads it.
func GetSettings() *Arguments {
	once.Do(func() {
		instance = &Arguments{}
	})
	return instance
}

// LoadConfigFile merges values from the YAML file at path into args.
// explicit holds the names of flags the user actually passed on the
// command line (main collects them with flag.Visit); those keep their
// value, every other field a non-zero file value overrides. That way a
// flag left at its default still picks up the file's setting.
func LoadConfigFile(args *Arguments, path string, explicit map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", path, err)
	}

	var fileArgs Arguments
	if err := yaml.Unmarshal(data, &fileArgs); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}

	if !explicit["datadir"] && fileArgs.DataDir != "" {
		args.DataDir = fileArgs.DataDir
	}
	if !explicit["logdir"] && fileArgs.LogDir != "" {
		args.LogDir = fileArgs.LogDir
	}
	if !explicit["host"] && fileArgs.Host != "" {
		args.Host = fileArgs.Host
	}
	if !explicit["port"] && fileArgs.Port != 0 {
		args.Port = fileArgs.Port
	}
	if !explicit["verbose"] && fileArgs.Verbose {
		args.Verbose = true
	}
	if !explicit["debug"] && fileArgs.Debug {
		args.Debug = true
	}
	if !explicit["auth"] && fileArgs.AuthEnabled {
		args.AuthEnabled = true
	}
	if !explicit["usersfile"] && fileArgs.UsersFile != "" {
		args.UsersFile = fileArgs.UsersFile
	}
	if !explicit["clipboardurl"] && fileArgs.ClipboardServiceURL != "" {
		args.ClipboardServiceURL = fileArgs.ClipboardServiceURL
	}
	if !explicit["statscron"] && fileArgs.StatsRefreshSpec != "" {
		args.StatsRefreshSpec = fileArgs.StatsRefreshSpec
	}

	return nil
}
