package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxBackups is the maximum number of config backups kept per project.
	MaxBackups = 3

	// BackupSuffix is the file extension appended to project config
	// backups, followed by a random disambiguator.
	BackupSuffix = ".bak"
)

// BackupConfig creates a copy of dir's .semche.yaml (or .semche.yml)
// alongside it, named with a random suffix so concurrent backups never
// collide even within the same second. Returns the backup path, or ""
// if the project has no config file to back up.
func BackupConfig(dir string) (string, error) {
	configPath := projectConfigPath(dir)
	if configPath == "" {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, uuid.NewString())
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := pruneBackups(configPath); err != nil {
		return backupPath, err
	}

	return backupPath, nil
}

// ListConfigBackups returns every backup for dir's project config,
// sorted newest first.
func ListConfigBackups(dir string) ([]string, error) {
	configPath := projectConfigPath(dir)
	if configPath == "" {
		configPath = filepath.Join(dir, ".semche.yaml")
	}
	return listBackupsFor(configPath)
}

// RestoreConfig overwrites dir's project config with the contents of
// backupPath, first backing up whatever config currently exists.
func RestoreConfig(dir, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	if projectConfigPath(dir) != "" {
		if _, err := BackupConfig(dir); err != nil {
			return fmt.Errorf("failed to back up current config before restore: %w", err)
		}
	}

	target := projectConfigPath(dir)
	if target == "" {
		target = filepath.Join(dir, ".semche.yaml")
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}

	return nil
}

// projectConfigPath returns dir's existing .semche.yaml or .semche.yml
// path, or "" if neither exists.
func projectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".semche.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".semche.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return ""
}

func listBackupsFor(configPath string) ([]string, error) {
	configDir := filepath.Dir(configPath)
	configBase := filepath.Base(configPath)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := configBase + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(configDir, entry.Name()))
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		infoI, errI := os.Stat(backups[i])
		infoJ, errJ := os.Stat(backups[j])
		if errI != nil || errJ != nil {
			return false
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return backups, nil
}

func pruneBackups(configPath string) error {
	backups, err := listBackupsFor(configPath)
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	for _, backup := range backups[MaxBackups:] {
		_ = os.Remove(backup)
	}
	return nil
}
