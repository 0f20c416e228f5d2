// Package cliconfig loads command configuration from CLI flags, environment
// variables and a YAML config file into tagged structs.
//
// Fields are mapped with struct tags:
//
//	cli:"app-id"         flag name, or "arg:0" / "arg:*" for positional args
//	env:"FUSS_METHOD"    env fallback for positional args
//	normalize:"list"     split comma separated values ("filepath" also works)
//	validate:"required"  fail if the field is empty ("file-exists" also works)
//	label:"app id"       name used in validation errors
package cliconfig

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fussgo/fuss/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// The logger used
	Logger logger.Logger

	// A slice of paths to files that should be used as config files
	DefaultConfigFilePaths []string

	// The file that was used when loading this configuration
	File *File
}

// Matches "arg:index" (specific non-flag arg) or "arg:*" (all non-flag args).
var argCLINameRE = regexp.MustCompile(`arg:(\d+|\*)`)

// Loads the config from the CLI and config files that are present and returns
// any warnings or errors
func (l *Loader) Load() (warnings []string, err error) {
	// Try and find a config file, either passed in the command line using
	// --config, or in one of the default configuration file paths.
	if l.CLI.String("config") != "" {
		file := File{Path: l.CLI.String("config")}

		// Because this file was passed in manually, we should throw an error
		// if it doesn't exist.
		if file.Exists() {
			l.File = &file
		} else {
			absolutePath, _ := file.AbsolutePath()
			return warnings, fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
	} else {
		for _, path := range l.DefaultConfigFilePaths {
			file := File{Path: path}
			if file.Exists() {
				l.File = &file
				break
			}
		}
	}

	if l.File != nil {
		if err := l.File.Load(); err != nil {
			return warnings, fmt.Errorf("loading config file: %w", err)
		}
		if l.Logger != nil {
			l.Logger.Debug("Loaded config file %s", l.File.Path)
		}
		warnings = append(warnings, l.unknownFileOptions()...)
	}

	fields, err := reflections.Fields(l.Config)
	if err != nil {
		return warnings, fmt.Errorf("listing config fields: %w", err)
	}

	for _, fieldName := range fields {
		cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli")
		if cliName != "" {
			if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
				return warnings, fmt.Errorf("setting config field %s: %w", fieldName, err)
			}
		}

		normalization, _ := reflections.GetFieldTag(l.Config, fieldName, "normalize")
		if normalization != "" {
			if err := l.normalizeField(fieldName, normalization); err != nil {
				return warnings, fmt.Errorf("normalizing config field %s: %w", fieldName, err)
			}
		}

		validationRules, _ := reflections.GetFieldTag(l.Config, fieldName, "validate")
		if validationRules != "" {
			// Use the label, then the cli name, then the struct field name
			label, _ := reflections.GetFieldTag(l.Config, fieldName, "label")
			if label == "" {
				if cliName != "" {
					label = cliName
				} else {
					label = fieldName
				}
			}

			if err := l.validateField(fieldName, label, validationRules); err != nil {
				return warnings, err
			}
		}
	}

	return warnings, nil
}

// unknownFileOptions warns about config file keys that no field reads.
func (l Loader) unknownFileOptions() []string {
	known := make(map[string]bool)
	fields, _ := reflections.Fields(l.Config)
	for _, fieldName := range fields {
		if cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli"); cliName != "" {
			known[cliName] = true
		}
	}

	var warnings []string
	for key := range l.File.Config {
		if !known[key] {
			warnings = append(warnings, fmt.Sprintf("Unknown config option %q in %s", key, l.File.Path))
		}
	}
	// Map order is random; keep the output stable.
	slices.Sort(warnings)
	return warnings
}

func (l Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}
	fieldType, err := reflections.GetFieldType(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the type of struct field %q: %w", fieldName, err)
	}

	var value any

	// See the if the cli option is using the arg format (arg:1)
	argMatch := argCLINameRE.FindStringSubmatch(cliName)
	if len(argMatch) > 0 {
		argNum := argMatch[1]

		if argNum == "*" {
			value = []string(l.CLI.Args())
		} else {
			argIndex, err := strconv.Atoi(argNum)
			if err != nil {
				return fmt.Errorf("converting string to int: %w", err)
			}

			// Only set the value if the args are long enough for
			// the position to exist.
			if len(l.CLI.Args()) > argIndex {
				value = l.CLI.Args()[argIndex]
			}
		}

		// Otherwise see if we can pull it from an environment variable
		// (and fail gracefully if we can't)
		if value == nil {
			envName, err := reflections.GetFieldTag(l.Config, fieldName, "env")
			if err == nil && envName != "" {
				if envValue, envSet := os.LookupEnv(envName); envSet {
					value = envValue
				}
			}
		}
	} else {
		// Start with the config file value, if there is one
		if l.File != nil {
			if configFileValue, ok := l.File.Config[cliName]; ok {
				value, err = convertFileValue(configFileValue, fieldKind, fieldType)
				if err != nil {
					return fmt.Errorf("config file option %q: %w", cliName, err)
				}
			}
		}

		// Flags and env vars win over the config file
		if value == nil || l.cliValueIsSet(cliName) {
			switch fieldKind {
			case reflect.String:
				value = l.CLI.String(cliName)
			case reflect.Slice:
				value = l.CLI.StringSlice(cliName)
			case reflect.Bool:
				value = l.CLI.Bool(cliName)
			case reflect.Int:
				value = l.CLI.Int(cliName)
			case reflect.Int64:
				switch fieldType {
				case "int64":
					value = l.CLI.Int64(cliName)
				case "time.Duration":
					value = l.CLI.Duration(cliName)
				default:
					return fmt.Errorf("unsupported field type %s for kind int64", fieldType)
				}
			default:
				return fmt.Errorf("unable to handle type: %s", fieldKind)
			}
		}
	}

	if value != nil {
		if err := reflections.SetField(l.Config, fieldName, value); err != nil {
			return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
		}
	}

	return nil
}

func convertFileValue(v any, kind reflect.Kind, typ string) (any, error) {
	if list, ok := v.([]string); ok {
		if kind != reflect.Slice {
			return nil, fmt.Errorf("got a list, want a single %s", typ)
		}
		return list, nil
	}

	s, _ := v.(string)
	switch kind {
	case reflect.String:
		return s, nil
	case reflect.Slice:
		return strings.Split(s, ","), nil
	case reflect.Bool:
		return strconv.ParseBool(s)
	case reflect.Int:
		return strconv.Atoi(s)
	case reflect.Int64:
		switch typ {
		case "int64":
			return strconv.ParseInt(s, 10, 64)
		case "time.Duration":
			return time.ParseDuration(s)
		default:
			return nil, fmt.Errorf("unsupported field type %s for kind int64", typ)
		}
	default:
		return nil, fmt.Errorf("unable to convert string to type %s", kind)
	}
}

func (l Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.CLI.Command.Name)

	return fmt.Errorf(format+suffix, v...)
}

func (l Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) {
		return true
	}

	// cli.Context#IsSet only checks to see if the command was set via the cli, not
	// via the environment. So here we do some hacks to find out the name of the
	// EnvVar, and return true if it was set.
	for _, flag := range l.CLI.Command.Flags {
		name, _ := reflections.GetField(flag, "Name")
		envVar, _ := reflections.GetField(flag, "EnvVar")
		if name != cliName {
			continue
		}
		if envVarStr, ok := envVar.(string); ok && envVarStr != "" {
			for env := range strings.SplitSeq(envVarStr, ",") {
				if os.Getenv(strings.TrimSpace(env)) != "" {
					return true
				}
			}
		}
	}

	return false
}

func (l Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	if value == nil {
		return true
	}
	return reflect.ValueOf(value).IsZero() ||
		(reflect.ValueOf(value).Kind() == reflect.Slice && reflect.ValueOf(value).Len() == 0)
}

func (l Loader) validateField(fieldName, label, validationRules string) error {
	for rule := range strings.SplitSeq(validationRules, ",") {
		switch rule {
		case "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}

		case "file-exists":
			value, _ := reflections.GetField(l.Config, fieldName)

			// Empty values are left to "required"
			if valueAsString, ok := value.(string); ok && valueAsString != "" {
				if _, err := os.Stat(valueAsString); err != nil {
					return fmt.Errorf("couldn't find %s located at %s: %w", label, value, err)
				}
			}

		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}

	return nil
}

func (l Loader) normalizeField(fieldName, normalization string) error {
	value, _ := reflections.GetField(l.Config, fieldName)
	fieldKind, _ := reflections.GetFieldKind(l.Config, fieldName)

	switch normalization {
	case "filepath":
		if fieldKind != reflect.String {
			return fmt.Errorf("filepath normalization only works on string fields")
		}

		if valueAsString, ok := value.(string); ok {
			normalizedPath, err := NormalizeFilePath(valueAsString)
			if err != nil {
				return err
			}
			return reflections.SetField(l.Config, fieldName, normalizedPath)
		}

	case "list":
		if fieldKind != reflect.Slice {
			return fmt.Errorf("list normalization only works on slice fields")
		}

		if valueAsSlice, ok := value.([]string); ok {
			normalizedSlice := []string{}

			for _, value := range valueAsSlice {
				// Split values with commas into fields
				for normalized := range strings.SplitSeq(value, ",") {
					normalized = strings.TrimSpace(normalized)
					if normalized == "" {
						continue
					}
					normalizedSlice = append(normalizedSlice, normalized)
				}
			}

			return reflections.SetField(l.Config, fieldName, normalizedSlice)
		}

	default:
		return fmt.Errorf("unknown normalization %q", normalization)
	}

	return nil
}
