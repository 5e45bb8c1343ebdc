package config

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads naturally from YAML ("5s",
// "250ms") and from bare numbers.
type Duration time.Duration

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	dur, err := cast.ToDurationE(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(dur)
	return nil
}
