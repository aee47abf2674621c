package types

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Dimension is a width/height pair. In YAML it is written compactly as
// "600x400"; a {width, height} mapping is accepted as well.
type Dimension struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

var dimensionPattern = regexp.MustCompile(`^(\d+)\s*[xX]\s*(\d+)$`)

// ParseDimension parses the compact "WxH" form.
func ParseDimension(s string) (Dimension, error) {
	matches := dimensionPattern.FindStringSubmatch(s)
	if matches == nil {
		return Dimension{}, fmt.Errorf("invalid dimension format: %s (expected WxH)", s)
	}

	width, err := strconv.Atoi(matches[1])
	if err != nil {
		return Dimension{}, fmt.Errorf("invalid dimension width: %s", matches[1])
	}
	height, err := strconv.Atoi(matches[2])
	if err != nil {
		return Dimension{}, fmt.Errorf("invalid dimension height: %s", matches[2])
	}

	return Dimension{Width: width, Height: height}, nil
}

// String returns the compact "WxH" form.
func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// IsZero reports whether both sides are unset.
func (d Dimension) IsZero() bool {
	return d.Width == 0 && d.Height == 0
}

// Fits reports whether d fits inside limit on both axes.
func (d Dimension) Fits(limit Dimension) bool {
	return d.Width <= limit.Width && d.Height <= limit.Height
}

// UnmarshalYAML accepts either the compact "600x400" scalar or a
// {width, height} mapping.
func (d *Dimension) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseDimension(value.Value)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}

	var raw struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid dimension: %w", err)
	}
	*d = Dimension{Width: raw.Width, Height: raw.Height}
	return nil
}

// MarshalYAML emits the compact scalar form.
func (d Dimension) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
