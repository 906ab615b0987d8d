package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/scope"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Data flags
	DataFile string
	Set      []string

	// Output flags
	Out    string
	Format string
}

// AddStandardFlags adds the named flag groups to cmd.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "data":
			addDataFlags(cmd, flags)
		case "out":
			cmd.Flags().StringVar(&flags.Out, "out", "", "write output to this file instead of stdout")
		case "format":
			cmd.Flags().StringVarP(&flags.Format, "output", "o", "table", "output format (table|json|yaml)")
			AddFlagValidation(cmd, "output", func(format string) error {
				return validateChoice(format, []string{"table", "json", "yaml"})
			})
		}
	}

	return flags
}

func addDataFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.DataFile, "data", "d", "", "YAML or JSON file bound into the root scope")
	cmd.Flags().StringArrayVar(&flags.Set, "set", nil, "bind a value, e.g. --set user.name=Ana (repeatable)")
	AddFlagValidation(cmd, "data", validateFileExists)
}

// LoadData reads the data file and applies every --set binding on top.
func (f *StandardFlags) LoadData() (map[string]any, error) {
	data := map[string]any{}

	if f.DataFile != "" {
		raw, err := os.ReadFile(f.DataFile)
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "failed to read data file", err).WithFile(f.DataFile)
		}
		// JSON is a subset of YAML.
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid data file "+f.DataFile)
		}
		if data == nil {
			data = map[string]any{}
		}
	}

	for _, kv := range f.Set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid --set %q, want key=value", kv))
		}
		if err := setPath(data, strings.Split(key, "."), parseScalar(value)); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// Scope builds the root scope from LoadData.
func (f *StandardFlags) Scope() (*scope.Scope, error) {
	data, err := f.LoadData()
	if err != nil {
		return nil, err
	}
	return scope.FromMap(data), nil
}

func setPath(m map[string]any, path []string, value any) error {
	for i, key := range path[:len(path)-1] {
		next, ok := m[key]
		if !ok {
			child := map[string]any{}
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("cannot set %s: %s is not a map", strings.Join(path, "."), strings.Join(path[:i+1], ".")))
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}

// parseScalar reads bools and integers; anything else stays a string.
func parseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

func validateChoice(value string, choices []string) error {
	for _, c := range choices {
		if strings.EqualFold(value, c) {
			return nil
		}
	}
	return fmt.Errorf("invalid value %q (supported: %s)", value, strings.Join(choices, ", "))
}

func validateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}

func validatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}
