package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clipdash/src/auth"
	"clipdash/src/clipboard"
	"clipdash/src/directors"
	"clipdash/src/engine"
	"clipdash/src/server"
	"clipdash/src/settings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// printUsage prints helpful usage information
func printUsage() {
	log.Println("ClipDash registry - multi-database store for the clipboard dashboard")
	log.Println("\nUsage:")
	log.Println("  clipdash [options]")
	log.Println("\nOptions:")
	flag.PrintDefaults()

	log.Println("\nExamples:")
	log.Println("  clipdash --datadir=/data")
	log.Println("  clipdash --port=8450 --auth --usersfile=/data/users.enc")
}

func main() {
	// Get the global settings instance and bind flags onto it
	args := settings.GetSettings()

	flag.StringVar(&args.DataDir, "datadir", "./datafiles", "Directory to store catalog files and database stores")
	flag.StringVar(&args.LogDir, "logdir", "", "Directory to store log files (default: stdout)")
	flag.StringVar(&args.Host, "host", "127.0.0.1", "Host name or IP address to listen on")
	flag.IntVar(&args.Port, "port", 8450, "Port for the HTTP server")
	flag.BoolVar(&args.Verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&args.ConfigFile, "config", "", "Path to YAML config file")
	flag.BoolVar(&args.AuthEnabled, "auth", false, "Enable authentication")
	flag.StringVar(&args.UsersFile, "usersfile", "", "Path to the encrypted user store file")
	flag.StringVar(&args.ClipboardServiceURL, "clipboardurl", "", "Base URL of the clipboard history service")
	flag.StringVar(&args.StatsRefreshSpec, "statscron", "@every 5m", "Cron spec for the statistics refresh job")
	flag.BoolVar(&args.PrintToScreen, "print", true, "Print log messages to screen")
	flag.BoolVar(&args.Debug, "debug", false, "Enable debug mode")
	flag.StringVar(&args.Version, "version", "0.1.0", "Shows version")

	flag.Parse()

	if args.ConfigFile != "" {
		// Only flags the user actually passed beat the config file;
		// defaulted flags yield to it.
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := settings.LoadConfigFile(args, args.ConfigFile, explicit); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	if err := validateArguments(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		printUsage()
		os.Exit(1)
	}

	logger, err := initLogger(args)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if args.Verbose {
		sugar.Infof("ClipDash starting with options:")
		sugar.Infof("  Data Directory: %s", args.DataDir)
		sugar.Infof("  Host: %s", args.Host)
		sugar.Infof("  Port: %d", args.Port)
		sugar.Infof("  Auth Enabled: %v", args.AuthEnabled)
		sugar.Infof("  Config File: %s", args.ConfigFile)
	}

	// Wire the service layer
	catalogStore, err := engine.NewCatalogStore(args.DataDir, sugar)
	if err != nil {
		sugar.Fatalf("Failed to create catalog store: %v", err)
	}
	templates := engine.NewTemplateCatalog()

	registry := directors.NewRegistryService(catalogStore, templates, args, sugar)
	connections := directors.NewConnectionManager(registry, args, sugar)
	crud := directors.NewCrudService(connections, sugar)
	search := directors.NewSearchService(connections, crud, sugar)
	transfer := directors.NewTransferService(registry, connections, crud, sugar)

	manager := directors.InitServiceManager(registry, connections, crud, search, transfer, sugar)

	usersFile := args.UsersFile
	if usersFile == "" {
		usersFile = filepath.Join(args.DataDir, "users.enc")
	}
	userStore, err := auth.NewUserStore(usersFile, os.Getenv("CLIPDASH_USERS_KEY"))
	if err != nil {
		sugar.Fatalf("Failed to open user store: %v", err)
	}
	userService := directors.NewUserService(userStore, auth.NewUserFactory(), args, sugar)

	var seeder *clipboard.Seeder
	if args.ClipboardServiceURL != "" {
		seeder = clipboard.NewSeeder(clipboard.NewClient(args.ClipboardServiceURL), crud, sugar)
	}

	// Recover connections whose persisted status survived the last run
	connections.ReloadActive()

	// Periodic statistics refresh for connected databases
	var scheduler *cron.Cron
	if args.StatsRefreshSpec != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(args.StatsRefreshSpec, connections.RefreshAllStats); err != nil {
			sugar.Fatalf("Invalid statistics cron spec %q: %v", args.StatsRefreshSpec, err)
		}
		scheduler.Start()
	}

	srv := server.NewServer(manager, userService, seeder, args, sugar)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Handle graceful shutdown
	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			sugar.Fatalf("Server failed: %v", err)
		}
	case <-shutdownSignal:
	}
	sugar.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		sugar.Warnf("Error stopping server: %v", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := connections.CloseAll(); err != nil {
		sugar.Warnf("Error closing stores: %v", err)
	}

	sugar.Info("Server shutdown complete")
}

// initLogger builds the zap logger: development config in debug mode,
// production otherwise. Log output goes to a timestamped file under
// LogDir when one is configured.
func initLogger(args *settings.Arguments) (*zap.Logger, error) {
	var cfg zap.Config
	if args.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	outputs := []string{}
	if args.PrintToScreen || args.LogDir == "" {
		outputs = append(outputs, "stdout")
	}
	if args.LogDir != "" {
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile := filepath.Join(args.LogDir, fmt.Sprintf("%s_%s_ServerLog.txt", timestamp, args.Host))
		outputs = append(outputs, logFile)
	}
	cfg.OutputPaths = outputs

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// validateArguments validates the arguments and returns an error if invalid
func validateArguments(args *settings.Arguments) error {
	// Check if data directory exists and is accessible
	dirInfo, err := os.Stat(args.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			// Try to create the directory
			err = os.MkdirAll(args.DataDir, 0755)
			if err != nil {
				return fmt.Errorf("could not create data directory: %w", err)
			}
		} else {
			return fmt.Errorf("error accessing data directory: %w", err)
		}
	} else if !dirInfo.IsDir() {
		return fmt.Errorf("data directory path exists but is not a directory: %s", args.DataDir)
	}

	if args.LogDir != "" {
		if err := os.MkdirAll(args.LogDir, 0755); err != nil {
			return fmt.Errorf("could not create log directory: %w", err)
		}
	}

	// Validate port range
	if args.Port < 1 || args.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", args.Port)
	}

	return nil
}
