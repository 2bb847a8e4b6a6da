package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

type SPI struct {
	Dev      string `yaml:"dev"`      // e.g. /dev/spidev0.0, empty for the first port
	SpeedHz  int    `yaml:"speed_hz"` // e.g. 2400000
	Capacity int    `yaml:"capacity"` // pulse codes per frame
}

type Serial struct {
	Port     string `yaml:"port"` // e.g. /dev/ttyUSB0
	Baud     int    `yaml:"baud"`
	ClockHz  int    `yaml:"clock_hz"` // bridge peripheral clock
	Channels int    `yaml:"channels"`
	Capacity int    `yaml:"capacity"`
}

type Config struct {
	Driver     string  `yaml:"driver"`  // "strip" | "nrz" | "sim"
	Backend    string  `yaml:"backend"` // "spi" | "serial", strip only
	Variant    string  `yaml:"variant"`
	Count      int     `yaml:"count"`
	Channel    int     `yaml:"channel"`
	Pin        string  `yaml:"pin"`
	ColorOrder string  `yaml:"color_order,omitempty"`
	TimeoutMs  int     `yaml:"timeout_ms"`
	FPS        int     `yaml:"fps"`
	Brightness float64 `yaml:"brightness"`
	Addr       string  `yaml:"addr"`

	SPI    SPI    `yaml:"spi,omitempty"`
	Serial Serial `yaml:"serial,omitempty"`
}

// Default returns the settings used when neither flags nor file say otherwise.
func Default() *Config {
	return &Config{
		Driver:     "sim",
		Backend:    "spi",
		Variant:    "WS2812",
		Count:      30,
		TimeoutMs:  100,
		FPS:        30,
		Brightness: 1,
		Addr:       ":8080",
		SPI:        SPI{SpeedHz: 2400000, Capacity: 4096},
		Serial:     Serial{Baud: 921600, ClockHz: 80000000, Channels: 4, Capacity: 512},
	}
}

// Timeout returns TimeoutMs as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Validate reports settings no driver can run with.
func (c *Config) Validate() error {
	switch c.Driver {
	case "strip", "nrz", "sim":
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}
	if c.Driver == "strip" && c.Backend != "spi" && c.Backend != "serial" {
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Count <= 0 {
		return fmt.Errorf("config: invalid LED count %d", c.Count)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("config: invalid fps %d", c.FPS)
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		return fmt.Errorf("config: brightness %g out of [0, 1]", c.Brightness)
	}
	if c.TimeoutMs < 0 {
		return fmt.Errorf("config: negative timeout %dms", c.TimeoutMs)
	}
	return nil
}

// Load reads path into a copy of base. Keys absent from the file keep the
// value from base.
func Load(path string, base *Config) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := *base
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

// Patch sets top-level keys of the YAML file at path and leaves every other
// key, and its comments, as written. A missing file is created.
func Patch(path string, set map[string]any) error {
	var doc yaml.Node
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("config: %s: top level is not a mapping", path)
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := &yaml.Node{}
		if err := val.Encode(set[k]); err != nil {
			return fmt.Errorf("config: %s: %w", k, err)
		}
		i := 0
		for ; i+1 < len(m.Content); i += 2 {
			if m.Content[i].Value == k {
				val.LineComment = m.Content[i+1].LineComment
				m.Content[i+1] = val
				break
			}
		}
		if i+1 >= len(m.Content) {
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
		}
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
