package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"argus/config"
	"argus/detect"
)

// EnsureLogsDir creates the logs directory and verifies it is writable.
// This is a pre-flight check that runs before the logger is built.
func EnsureLogsDir(dir string) (string, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w\n"+
			"  Remediation: Ensure the parent directory exists and is writable\n"+
			"  Or point paths.logs_dir (ARGUS_PATHS_LOGS_DIR) elsewhere", dir, err)
	}

	testFile := filepath.Join(absPath, ".argus_write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return "", fmt.Errorf("directory %s is not writable: %w\n"+
			"  Remediation: Run 'chmod -R u+w %s'", dir, err, absPath)
	}
	os.Remove(testFile)

	return absPath, nil
}

// DetectOptions maps configuration onto engine options
func DetectOptions(cfg *config.Config) detect.Options {
	return detect.Options{
		Thresholds: detect.Thresholds{
			ARPWindow:           secondsToDuration(cfg.Thresholds.ARPWindowSec),
			ICMPPerSec:          cfg.Thresholds.ICMPPerSec,
			DNSLabelMax:         cfg.Thresholds.DNSLabelMax,
			DNSNameMax:          cfg.Thresholds.DNSNameMax,
			DNSEntropyThreshold: cfg.Thresholds.DNSEntropyThreshold,
		},
		Rules: detect.Rules{
			DNSSuspicious: cfg.Rules.DNSSuspicious,
			ICMPFlood:     cfg.Rules.ICMPFlood,
			ARPSpoof:      cfg.Rules.ARPSpoof,
			HTTPKeyword:   cfg.Rules.HTTPKeyword,
		},
		DNSCacheSize:  cfg.Engine.DNSCacheSize,
		LogEveryEvent: cfg.Capture.LogEveryEvent,
	}
}
