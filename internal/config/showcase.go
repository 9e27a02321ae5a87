package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Location is one showcase stop as written in configuration.
type Location struct {
	Description string     `yaml:"description" json:"description"`
	Position    [3]float64 `yaml:"position" json:"position"`
	Yaw         float64    `yaml:"yaw" json:"yaw"`
	Pitch       float64    `yaml:"pitch" json:"pitch"`
	// Duration overrides SHOWCASE_DURATION for this stop when > 0.
	Duration Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// Duration decodes from milliseconds or a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseInterval(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type locationsFile struct {
	DefaultDuration Duration   `yaml:"default_duration"`
	Locations       []Location `yaml:"locations"`
}

const locationsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "interval": {
      "oneOf": [
        {"type": "integer", "minimum": 1},
        {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h)?([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))*$"}
      ]
    },
    "location": {
      "type": "object",
      "required": ["position"],
      "additionalProperties": false,
      "properties": {
        "description": {"type": "string"},
        "position": {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3},
        "yaw": {"type": "number", "minimum": -360, "maximum": 360},
        "pitch": {"type": "number", "minimum": -90, "maximum": 90},
        "duration": {"$ref": "#/$defs/interval"}
      }
    }
  },
  "oneOf": [
    {"type": "array", "items": {"$ref": "#/$defs/location"}},
    {
      "type": "object",
      "required": ["locations"],
      "additionalProperties": false,
      "properties": {
        "default_duration": {"$ref": "#/$defs/interval"},
        "locations": {"type": "array", "items": {"$ref": "#/$defs/location"}}
      }
    }
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func locationsValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		const url = "file:///voxelcam/showcase.schema.json"
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, strings.NewReader(locationsSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(url)
	})
	return schema, schemaErr
}

// LoadLocations reads a YAML or JSON showcase file.
func LoadLocations(path string) ([]Location, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("showcase locations: %w", err)
	}
	locs, err := ParseLocations(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return locs, nil
}

// ParseLocations accepts either a bare list of locations or an object with
// "locations" and an optional "default_duration" applied to stops without
// their own. JSON input is parsed as YAML.
func ParseLocations(b []byte) ([]Location, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	// Validate the JSON view of the document so YAML and JSON share a schema.
	j, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(j, &generic); err != nil {
		return nil, err
	}
	s, err := locationsValidator()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(generic); err != nil {
		return nil, err
	}

	if _, isList := doc.([]any); isList {
		var locs []Location
		if err := yaml.NewDecoder(bytes.NewReader(b)).Decode(&locs); err != nil {
			return nil, err
		}
		return locs, nil
	}
	var f locationsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	for i := range f.Locations {
		if f.Locations[i].Duration <= 0 {
			f.Locations[i].Duration = f.DefaultDuration
		}
	}
	return f.Locations, nil
}
