package config

import (
	"fmt"
	"os"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"go.yaml.in/yaml/v2"
)

// connectorsFile is the layout of the connector configuration file
type connectorsFile struct {
	Connectors map[string]models.ConnectorProperty `yaml:"connectors"`
}

// LoadConnectors reads and validates the connector map in path
func LoadConnectors(path string) (*models.ConnectorSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "connectors", fmt.Errorf("failed to read %s: %w", path, err))
	}
	return ParseConnectors(data)
}

// ParseConnectors decodes a connector map. ${VAR} references are expanded
// from the environment so secrets can stay out of the file. Unknown keys are
// rejected.
func ParseConnectors(data []byte) (*models.ConnectorSet, error) {
	expanded := os.ExpandEnv(string(data))

	var file connectorsFile
	if err := yaml.UnmarshalStrict([]byte(expanded), &file); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "connectors", fmt.Errorf("failed to parse connector file: %w", err))
	}
	if file.Connectors == nil {
		file.Connectors = map[string]models.ConnectorProperty{}
	}

	return models.NewConnectorSet(file.Connectors)
}
