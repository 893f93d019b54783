package detector

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the threat lists and thresholds the rules evaluate against.
type Config struct {
	MaliciousDomains   []string
	RiskyCategories    []string
	UnusualUAPatterns  []string
	LargeDownloadBytes int64
	BurstWindow        time.Duration
	BurstThreshold     int
}

// fileConfig is the YAML shape of an on-disk rules file. Any field left
// out keeps its compiled default. The window is a duration string ("5m").
type fileConfig struct {
	MaliciousDomains   []string `yaml:"malicious_domains"`
	RiskyCategories    []string `yaml:"risky_categories"`
	UnusualUAPatterns  []string `yaml:"unusual_ua_patterns"`
	LargeDownloadBytes int64    `yaml:"large_download_bytes"`
	BurstWindow        string   `yaml:"burst_window"`
	BurstThreshold     int      `yaml:"burst_threshold"`
}

// DefaultConfig returns the built-in rule parameters.
func DefaultConfig() Config {
	return Config{
		MaliciousDomains: []string{
			"phishing-login.co",
			"suspicious-domain.xyz",
			"malicious-example.ru",
		},
		RiskyCategories: []string{
			"Proxy Avoidance",
			"Malware",
			"Phishing",
			"File Sharing",
		},
		UnusualUAPatterns:  []string{"curl/", "python-requests/"},
		LargeDownloadBytes: 50_000_000,
		BurstWindow:        5 * time.Minute,
		BurstThreshold:     10,
	}
}

// LoadConfig merges a YAML rules file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read rules file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse rules file: %w", err)
	}

	if len(fc.MaliciousDomains) > 0 {
		cfg.MaliciousDomains = fc.MaliciousDomains
	}
	if len(fc.RiskyCategories) > 0 {
		cfg.RiskyCategories = fc.RiskyCategories
	}
	if len(fc.UnusualUAPatterns) > 0 {
		cfg.UnusualUAPatterns = fc.UnusualUAPatterns
	}
	if fc.LargeDownloadBytes > 0 {
		cfg.LargeDownloadBytes = fc.LargeDownloadBytes
	}
	if fc.BurstWindow != "" {
		window, err := time.ParseDuration(fc.BurstWindow)
		if err != nil {
			return cfg, fmt.Errorf("parse burst window %q: %w", fc.BurstWindow, err)
		}
		cfg.BurstWindow = window
	}
	if fc.BurstThreshold > 0 {
		cfg.BurstThreshold = fc.BurstThreshold
	}
	return cfg, nil
}
