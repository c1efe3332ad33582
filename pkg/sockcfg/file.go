package sockcfg

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is a declarative socket file: one optional section per variant.
type File struct {
	Client  *ClientConfig  `yaml:"client,omitempty"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Radio   *RadioConfig   `yaml:"radio,omitempty"`
	Dish    *DishConfig    `yaml:"dish,omitempty"`
	Scatter *ScatterConfig `yaml:"scatter,omitempty"`
	Gather  *GatherConfig  `yaml:"gather,omitempty"`
}

// Parse decodes a socket file. Decoding is strict: fields a variant
// does not support, and sections that are not socket variants, are
// errors rather than silently dropped.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("parsing socket config: %w: %v", ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses the socket file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading socket config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate resolves every present section, reporting the first problem.
func (f *File) Validate() error {
	if f.Client != nil {
		if _, err := f.Client.Resolve(); err != nil {
			return fmt.Errorf("client: %w", err)
		}
	}
	if f.Server != nil {
		if _, err := f.Server.Resolve(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if f.Radio != nil {
		if _, err := f.Radio.Resolve(); err != nil {
			return fmt.Errorf("radio: %w", err)
		}
	}
	if f.Dish != nil {
		if _, err := f.Dish.Resolve(); err != nil {
			return fmt.Errorf("dish: %w", err)
		}
	}
	if f.Scatter != nil {
		if _, err := f.Scatter.Resolve(); err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
	}
	if f.Gather != nil {
		if _, err := f.Gather.Resolve(); err != nil {
			return fmt.Errorf("gather: %w", err)
		}
	}
	return nil
}
