package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ibeckermayer/threadsense/internal/config"
)

// StepName identifies a debug dump category in the cache dir
type StepName string

const (
	StepResult     StepName = "result"
	StepSnapshot   StepName = "snapshot"
	StepScreenshot StepName = "screenshot"
	StepLLM        StepName = "llm"
	StepReport     StepName = "report"
)

// stepDir returns the cache directory for a given step.
func stepDir(step StepName) (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, string(step)), nil
}

// generateFilename creates a sortable timestamped filename. Millisecond
// precision keeps concurrent scrapes from overwriting each other's dumps.
func generateFilename(ext string) string {
	return time.Now().Format("2006-01-02T15-04-05.000") + ext
}

// SaveStepOutput saves JSON-serializable data to the step's cache directory.
// Returns the path to the saved file.
func SaveStepOutput[T any](step StepName, data T) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal step output: %w", err)
	}
	return SaveRawOutput(step, jsonData, ".json")
}

// SaveRawOutput saves bytes (page HTML, screenshots) to the step's cache
// directory. Returns the path to the saved file.
func SaveRawOutput(step StepName, data []byte, ext string) (string, error) {
	dir, err := stepDir(step)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create step cache dir: %w", err)
	}

	path := filepath.Join(dir, generateFilename(ext))

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write step output: %w", err)
	}

	return path, nil
}

// LoadLatestStepOutput loads the most recent JSON output of a step.
// Returns the data, the filepath it was loaded from, and any error.
func LoadLatestStepOutput[T any](step StepName) (T, string, error) {
	var zero T

	latestPath, err := LatestStepFile(step, ".json")
	if err != nil {
		return zero, "", err
	}

	data, err := LoadStepOutput[T](latestPath)
	if err != nil {
		return zero, "", err
	}

	return data, latestPath, nil
}

// LoadStepOutput loads JSON data from a specific file path.
func LoadStepOutput[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read step output: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal step output: %w", err)
	}

	return data, nil
}

// LatestStepFile returns the most recent file with extension ext in a
// step's cache directory. An empty ext matches any file.
func LatestStepFile(step StepName, ext string) (string, error) {
	dir, err := stepDir(step)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no cached output for step %s", step)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	latest := ""
	for _, entry := range entries {
		if entry.IsDir() || (ext != "" && filepath.Ext(entry.Name()) != ext) {
			continue
		}
		latest = entry.Name()
	}

	if latest == "" {
		return "", fmt.Errorf("no cached output for step %s", step)
	}

	return filepath.Join(dir, latest), nil
}
