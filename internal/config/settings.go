package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/deskbot/internal/domain"
)

type settingsFile struct {
	Tickets      domain.TicketSettings `yaml:"tickets"`
	Applications struct {
		domain.ApplicationSettings `yaml:",inline"`
		Questions                  []string `yaml:"questions"`
	} `yaml:"applications"`
}

// LoadSettings reads a YAML seed for the panel settings. An empty path
// yields zero settings.
func LoadSettings(path string) (domain.Settings, error) {
	if path == "" {
		return domain.Settings{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return ParseSettings(raw)
}

// ParseSettings decodes a YAML settings document.
func ParseSettings(raw []byte) (domain.Settings, error) {
	var file settingsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if len(file.Applications.Questions) > domain.MaxQuestions {
		return domain.Settings{}, fmt.Errorf("decode settings: %d questions, at most %d allowed",
			len(file.Applications.Questions), domain.MaxQuestions)
	}
	settings := domain.Settings{
		Tickets:      file.Tickets,
		Applications: file.Applications.ApplicationSettings,
	}
	copy(settings.Applications.Questions[:], file.Applications.Questions)
	return settings, nil
}
