package toolutils

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DecodeYaml strictly decodes a YAML file into dest; unknown keys are errors.
func DecodeYaml(dest any, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("unable to open configuration file: %w", err)
	}
	defer f.Close()

	if err = yaml.NewDecoder(f, yaml.Strict()).Decode(dest); err != nil {
		return fmt.Errorf("unable to parse configuration file: %w", err)
	}
	return nil
}

// ReadYaml is DecodeYaml for command line tools: it exits the process on error.
func ReadYaml(dest any, file string) {
	if err := DecodeYaml(dest, file); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(3)
	}
}
