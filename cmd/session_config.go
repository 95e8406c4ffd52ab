package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Define struct for YAML
type SessionConfig struct {
	Sessions map[string]Session `yaml:"sessions"`
}

type Session struct {
	Generations     int    `yaml:"generations"`
	Speed           int    `yaml:"speed"`
	Realtime        bool   `yaml:"realtime"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	CheckpointOut   string `yaml:"checkpoint_out"`
	FitnessFile     string `yaml:"fitness_file"`
	ExportBest      string `yaml:"export_best"`
	ExportName      string `yaml:"export_name"`
}

// GetSession looks up a named training session preset in a YAML file.
// Returns nil when the preset does not exist.
func GetSession(sessionFilePath string, sessionName string) *Session {
	// Read YAML file
	data, err := os.ReadFile(sessionFilePath)
	if err != nil {
		logrus.Fatalf("unable to read session file %v: %v", sessionFilePath, err)
	}

	// Parse YAML
	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Fatalf("unable to parse session file %v: %v", sessionFilePath, err)
	}

	if session, sessionExists := cfg.Sessions[sessionName]; sessionExists {
		logrus.Infof("Using preset session %v", sessionName)
		return &session
	}
	return nil
}
