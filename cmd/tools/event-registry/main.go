// cmd/tools/event-registry/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"marketplace-search/internal/common/validation"
	"marketplace-search/pkg/registry"
)

var registryPath string

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	exportCmd.StringVar(&registryPath, "path", "configs/event-registry.json", "Output path")
	validateCmd.StringVar(&registryPath, "path", "configs/event-registry.json", "Path to registry file")

	event := checkCmd.String("event", "", "Event name (e.g., listing-created)")
	payload := checkCmd.String("payload", "", "Path to a JSON payload file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if err := saveRegistry(registry.Default(), registryPath); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", registryPath)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		if err := validateRegistry(reg); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d events.\n", len(reg.Events))

	case "check":
		checkCmd.Parse(os.Args[2:])
		if *event == "" || *payload == "" {
			fmt.Println("Error: event and payload are required for check.")
			checkCmd.Usage()
			os.Exit(1)
		}
		result, err := checkPayload(registry.Default(), *event, *payload)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if !result.Valid {
			for _, msg := range result.GetErrorMessages() {
				fmt.Println("  " + msg)
			}
			os.Exit(1)
		}
		fmt.Println("Payload is valid.")

	case "help":
		fallthrough
	default:
		help()
	}
}

// validateRegistry checks that names and task types are unique and every
// schema compiles.
func validateRegistry(reg *registry.EventRegistry) error {
	if len(reg.Events) == 0 {
		return fmt.Errorf("registry contains no events")
	}

	names := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for i := range reg.Events {
		ev := &reg.Events[i]
		if ev.Name == "" {
			return fmt.Errorf("event missing required field: Name")
		}
		if ev.TaskType == "" {
			return fmt.Errorf("event %s missing required field: TaskType", ev.Name)
		}
		if names[ev.Name] {
			return fmt.Errorf("duplicate event name: %s", ev.Name)
		}
		if taskTypes[ev.TaskType] {
			return fmt.Errorf("duplicate task type: %s", ev.TaskType)
		}
		names[ev.Name] = true
		taskTypes[ev.TaskType] = true

		doc, err := ev.SchemaJSON()
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.Name, err)
		}
		if _, err := validation.CompileSchema(doc); err != nil {
			return fmt.Errorf("event %s: %w", ev.Name, err)
		}
	}
	return nil
}

func checkPayload(reg *registry.EventRegistry, event, path string) (*validation.ValidationResult, error) {
	def, ok := reg.Lookup(event)
	if !ok {
		return nil, fmt.Errorf("unknown event %s", event)
	}
	doc, err := def.SchemaJSON()
	if err != nil {
		return nil, err
	}
	schema, err := validation.CompileSchema(doc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return schema.ValidateBytes(data)
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.EventRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: event-registry <command> [flags]

Commands:
  export    Write the built-in event registry to a JSON file
  validate  Validate a registry file
  check     Validate a payload file against an event schema
  help      Show this help message

Examples:
  event-registry export -path configs/event-registry.json
  event-registry validate -path configs/event-registry.json
  event-registry check -event listing-created -payload listing.json`)
}
