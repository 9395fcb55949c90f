package application

import (
	"io"

	"github.com/diwise/farm-operations/internal/pkg/application/events"
	"github.com/diwise/farm-operations/pkg/types"
	yaml "gopkg.in/yaml.v2"
)

// RecipeConfig describes a crop recipe, both in the seed configuration and in API requests.
type RecipeConfig struct {
	CropID            string           `yaml:"cropId" json:"cropId"`
	CropName          string           `yaml:"cropName" json:"cropName"`
	CropType          types.CropType   `yaml:"cropType" json:"cropType"`
	Description       string           `yaml:"description" json:"description,omitempty"`
	Version           string           `yaml:"version" json:"version"`
	Difficulty        types.Difficulty `yaml:"difficulty" json:"difficulty,omitempty"`
	IsPublic          bool             `yaml:"isPublic" json:"isPublic"`
	EstimatedYieldKg  *float64         `yaml:"estimatedYieldKg" json:"estimatedYieldKg,omitempty"`
	Tags              []string         `yaml:"tags" json:"tags,omitempty"`
	RequiredSensors   []string         `yaml:"requiredSensors" json:"requiredSensors,omitempty"`
	RequiredActuators []string         `yaml:"requiredActuators" json:"requiredActuators,omitempty"`
	Stages            []types.Stage    `yaml:"stages" json:"stages"`
}

type Config struct {
	Notifications []events.Notification `yaml:"notifications" json:"notifications,omitempty"`
	Recipes       []RecipeConfig        `yaml:"recipes" json:"recipes,omitempty"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err == nil {
		return &cfg, nil
	} else {
		return nil, err
	}
}
