package commands

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,49}$`)

var optionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,49}$`)

// NormalizeName lowercases and trims a command name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateRegistration checks a command name and its option list.
func ValidateRegistration(name string, options []Option) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("command name must match %s", namePattern.String())
	}
	if len(options) > MaxOptions {
		return fmt.Errorf("too many options (limit: %d)", MaxOptions)
	}
	seen := map[string]struct{}{}
	for _, opt := range options {
		if !optionNamePattern.MatchString(opt.Name) {
			return fmt.Errorf("option name %q must match %s", opt.Name, optionNamePattern.String())
		}
		if _, dup := seen[opt.Name]; dup {
			return fmt.Errorf("duplicate option name %q", opt.Name)
		}
		seen[opt.Name] = struct{}{}
		switch opt.Type {
		case OptionString, OptionInt, OptionBool, OptionUser, OptionChannel:
		default:
			return fmt.Errorf("option %q has unknown type %q", opt.Name, opt.Type)
		}
	}
	return nil
}

// ArgumentSchema compiles a JSON Schema for the command's arguments object.
func ArgumentSchema(options []Option) (*jsonschema.Resolved, error) {
	properties := map[string]*jsonschema.Schema{}
	var required []string
	for _, opt := range options {
		properties[opt.Name] = &jsonschema.Schema{
			Type:        schemaType(opt.Type),
			Description: opt.Description,
		}
		if opt.Required {
			required = append(required, opt.Name)
		}
	}
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
	return schema.Resolve(nil)
}

// ValidateArguments checks an argument map against the command's options:
// JSON Schema validation for types and required fields, plus rejection of
// arguments no option declares.
func ValidateArguments(options []Option, arguments map[string]any) error {
	known := map[string]struct{}{}
	for _, opt := range options {
		known[opt.Name] = struct{}{}
	}
	for name := range arguments {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: unknown argument %q", ErrInvalidArguments, name)
		}
	}
	resolved, err := ArgumentSchema(options)
	if err != nil {
		return fmt.Errorf("compile argument schema: %w", err)
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	if err := resolved.Validate(arguments); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func schemaType(optionType string) string {
	switch optionType {
	case OptionInt:
		return "integer"
	case OptionBool:
		return "boolean"
	default:
		// user and channel options carry IDs as strings.
		return "string"
	}
}
