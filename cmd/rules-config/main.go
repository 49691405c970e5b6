package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	rules "github.com/temitayocharles/healthcare-naija"
	"github.com/temitayocharles/healthcare-naija/logger"
	"github.com/temitayocharles/healthcare-naija/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "simulate":
		handleSimulate()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rules-config - Rule table tool for the document authorization engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rules-config convert <input> <output>                     - Convert between formats")
	fmt.Println("  rules-config validate <file>                              - Validate a rule table")
	fmt.Println("  rules-config stats <file>                                 - Show rule table statistics")
	fmt.Println("  rules-config simulate <file> <uid> <role> <op> <path> [docs.json] [incoming.json]")
	fmt.Println("                                                            - Evaluate one request")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
	fmt.Println("Use the file name \"builtin\" for the built-in healthcare table,")
	fmt.Println("and uid \"-\" for an unauthenticated principal.")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: rules-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	rs, err := loadRuleset(inputFile)
	if err != nil {
		fmt.Printf("Error loading rule table: %v\n", err)
		os.Exit(1)
	}

	if err := saveRuleset(rs, outputFile); err != nil {
		fmt.Printf("Error saving rule table: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rules-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	rs, err := loadRuleset(filename)
	if err != nil {
		fmt.Printf("Invalid rule table: %v\n", err)
		os.Exit(1)
	}
	if err := rs.Validate(); err != nil {
		fmt.Printf("Invalid rule table: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Rule table is valid")
	fmt.Printf("  Rules:    %d\n", len(rs.Rules()))
	fmt.Printf("  Checksum: %s\n", rs.Checksum())
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rules-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	rs, err := loadRuleset(filename)
	if err != nil {
		fmt.Printf("Error loading rule table: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Rule Table Statistics")
	fmt.Println("=====================")
	if stat, err := os.Stat(filename); err == nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Checksum:  %s\n", rs.Checksum())
	fmt.Println()

	schemas := 0
	deps := 0
	ops := 0
	for _, r := range rs.Rules() {
		if r.Schema != nil {
			schemas++
		}
		deps += len(r.Dependencies)
		for _, op := range []rules.Operation{rules.OpCreate, rules.OpRead, rules.OpUpdate, rules.OpDelete, rules.OpList} {
			if r.Predicate(op) != nil {
				ops++
			}
		}
	}
	fmt.Println("Components:")
	fmt.Printf("  Rules:               %d\n", len(rs.Rules()))
	fmt.Printf("  Declared operations: %d\n", ops)
	fmt.Printf("  Schemas:             %d\n", schemas)
	fmt.Printf("  Dependencies:        %d\n", deps)
	fmt.Println()

	fmt.Println("Patterns:")
	for _, r := range rs.Rules() {
		fmt.Printf("  %s\n", r.Pattern)
	}
}

func handleSimulate() {
	if len(os.Args) < 7 {
		fmt.Println("Usage: rules-config simulate <file> <uid> <role> <op> <path> [docs.json] [incoming.json]")
		os.Exit(1)
	}

	rs, err := loadRuleset(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading rule table: %v\n", err)
		os.Exit(1)
	}

	principal := rules.Anonymous()
	if uid := os.Args[3]; uid != "-" {
		principal = rules.PrincipalFromAssertion(&rules.IdentityAssertion{SubjectID: uid, Role: os.Args[4]})
	}
	op := rules.Operation(os.Args[5])
	docPath := os.Args[6]

	store := stores.NewMemoryDocumentStore()
	if len(os.Args) > 7 {
		docs, err := loadJSONMap(os.Args[7])
		if err != nil {
			fmt.Printf("Error loading documents: %v\n", err)
			os.Exit(1)
		}
		for p, fields := range docs {
			store.SetDocument(p, fields)
		}
	}

	var incoming map[string]any
	if len(os.Args) > 8 {
		data, err := os.ReadFile(os.Args[8])
		if err != nil {
			fmt.Printf("Error loading incoming fields: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &incoming); err != nil {
			fmt.Printf("Error parsing incoming fields: %v\n", err)
			os.Exit(1)
		}
	}

	engine, err := rules.NewEngine(rs, store, rules.WithLogger(logger.NewNullLogger()))
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	existing, err := store.GetDocument(ctx, docPath)
	if err != nil {
		fmt.Printf("Error reading document: %v\n", err)
		os.Exit(1)
	}
	if !existing.Exists {
		existing = nil
	}

	dec := engine.Authorize(ctx, &rules.Request{
		Principal: principal,
		Operation: op,
		Path:      docPath,
		Existing:  existing,
		Incoming:  incoming,
	})

	if dec.Allowed {
		fmt.Println("ALLOW")
	} else {
		fmt.Printf("DENY (%s)\n", dec.Code)
	}
	fmt.Printf("  Reason:  %s\n", dec.Reason)
	if dec.MatchedRule != "" {
		fmt.Printf("  Matched: %s\n", dec.MatchedRule)
	}
	if !dec.Allowed {
		os.Exit(2)
	}
}

func loadRuleset(filename string) (*rules.Ruleset, error) {
	if filename == "builtin" {
		return rules.HealthcareRuleset(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		return rules.LoadYAML(data)
	case ".json":
		return rules.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveRuleset(rs *rules.Ruleset, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error
	switch ext {
	case ".yaml", ".yml":
		data, err = rs.ToYAML()
	case ".json":
		data, err = rs.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func loadJSONMap(filename string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var out map[string]map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
