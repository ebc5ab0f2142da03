package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jgoulah/waterscraper/internal/config"
	"github.com/jgoulah/waterscraper/internal/database"
	"github.com/jgoulah/waterscraper/internal/scraper"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "waterscraper",
	Short: "Scrape hourly water usage from a municipal utility billing portal",
	Long: `Waterscraper is a CLI tool that logs into a city utility billing website,
extracts hourly water usage and correlated weather data embedded in the
dashboard, and exports it as CSV, a local SQLite table, or Home Assistant
sensor state.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// newScraper builds a portal scraper out of the loaded config
func newScraper(cfg *config.Config) (*scraper.Scraper, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("no credentials configured: set username/password in %s or the UTILITY_USERNAME/UTILITY_PASSWORD environment variables", getConfigPath())
	}

	return scraper.New(scraper.Options{
		Username:     cfg.Username,
		Password:     cfg.Password,
		BaseURL:      cfg.GetBaseURL(),
		RequestDelay: cfg.GetRequestDelay(),
		Timeout:      cfg.GetTimeout(),
	}), nil
}
