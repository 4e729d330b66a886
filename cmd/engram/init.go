package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"engram/internal/config"
)

// starterSchema gives a new workspace something to write against
// immediately. Agents extend it as their domain takes shape.
const starterSchema = `# Schema for the memory graph. Every entity label and edge type must
# be declared here before anything can write it.
nodes:
  - label: Note
    properties:
      title:
        kind: string
        required: true
      body:
        kind: string
      tags:
        kind: stringList

  - label: Decision
    properties:
      title:
        kind: string
        required: true
      status:
        kind: enum
        values: [proposed, accepted, superseded]
        default: proposed
      rationale:
        kind: string

edges:
  - type: REFERENCES
    from: Decision
    to: Note
  - type: SUPERSEDES
    from: Decision
    to: Decision
`

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and starter schema into the current directory",
	Long: `Init creates engram.yaml and a starter schema.yaml next to it, then
leaves everything else to the first write: the database and docs
directories appear on demand.

Existing files are left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Printf("Config %s already exists, skipping (use --force to overwrite)\n", configPath)
	} else {
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
	}

	schemaPath := cfg.Schema.Path
	if _, err := os.Stat(schemaPath); err == nil && !initForce {
		fmt.Printf("Schema %s already exists, skipping (use --force to overwrite)\n", schemaPath)
	} else {
		if err := os.WriteFile(schemaPath, []byte(starterSchema), 0644); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
		fmt.Printf("Wrote %s\n", schemaPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  engram upsert Note title=\"First note\"")
	fmt.Println("  engram query Note")
	fmt.Println("  engram sync")
	return nil
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config and schema")
}
