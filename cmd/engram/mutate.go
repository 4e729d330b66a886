package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"engram/internal/schema"
)

var (
	upsertID    string
	upsertProps string
)

var upsertCmd = &cobra.Command{
	Use:   "upsert <label> [key=value ...]",
	Short: "Create or update an entity (validates, then writes a new version)",
	Long: `Upsert validates the properties against the schema for <label> and
writes them as a new immutable version. Without --id a fresh entity is
created; with --id an existing entity gains version head+1.

Values parse as JSON where possible: port=8080 is a number, active=true
a boolean, tags='["a","b"]' an array. Use --props for a full JSON object.`,
	Example: `  engram upsert Service name=auth port=8080
  engram upsert Service --id 4f2a name=auth port=9090
  engram upsert Endpoint --props '{"path": "/login", "method": "POST"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpsert,
}

func runUpsert(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	props, err := parseProps(upsertProps, args[1:])
	if err != nil {
		return err
	}

	res, err := a.pipeline.Upsert(context.Background(), args[0], upsertID, props, a.actor())
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(res)
	}
	verb := "Updated"
	if res.Created {
		verb = "Created"
	}
	fmt.Printf("%s %s %s (version %d)\n", verb, args[0], res.ID, res.Version)
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft-delete an entity (history and audit trail survive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.pipeline.Delete(context.Background(), args[0], a.actor()); err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(map[string]interface{}{"id": args[0], "deleted": true})
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var relateProps string

var relateCmd = &cobra.Command{
	Use:   "relate <from-id> <TYPE> <to-id>",
	Short: "Create a typed edge between two entities",
	Long: `Relate opens a relationship of the given type. The edge must be
declared in the schema between the labels of the two entities. Closing
and reopening the same edge keeps each interval in history.`,
	Example: `  engram relate 4f2a DEPENDS_ON 9c1b
  engram relate 4f2a EXPOSES 9c1b --props '{"since": "2.0"}'`,
	Args: cobra.ExactArgs(3),
	RunE: runRelate,
}

func runRelate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	fromID, edgeType, toID := args[0], args[1], args[2]
	from, err := a.reader.Current(ctx, fromID)
	if err != nil {
		return fmt.Errorf("from entity: %w", err)
	}
	if from == nil {
		return fmt.Errorf("no live entity %q", fromID)
	}
	to, err := a.reader.Current(ctx, toID)
	if err != nil {
		return fmt.Errorf("to entity: %w", err)
	}
	if to == nil {
		return fmt.Errorf("no live entity %q", toID)
	}

	var props map[string]interface{}
	if relateProps != "" {
		if props, err = parseProps(relateProps, nil); err != nil {
			return err
		}
	}

	err = a.pipeline.Relate(ctx, fromID, toID, edgeType, from.Entity.Label, to.Entity.Label, props, a.actor())
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(map[string]interface{}{"from": fromID, "type": edgeType, "to": toID})
	}
	fmt.Printf("Related %s -[%s]-> %s\n", fromID, edgeType, toID)
	return nil
}

var unrelateCmd = &cobra.Command{
	Use:   "unrelate <from-id> <TYPE> <to-id>",
	Short: "Close an active edge (the interval stays in history)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.pipeline.Unrelate(context.Background(), args[0], args[2], args[1], a.actor()); err != nil {
			return err
		}
		if jsonOut {
			return emitJSON(map[string]interface{}{"from": args[0], "type": args[1], "to": args[2], "closed": true})
		}
		fmt.Printf("Closed %s -[%s]-> %s\n", args[0], args[1], args[2])
		return nil
	},
}

var validateProps string

var validateCmd = &cobra.Command{
	Use:   "validate <label> [key=value ...]",
	Short: "Check properties against the schema without writing anything",
	Long: `Validate runs the same schema check a write would, reporting every
field error at once. Exits 1 when validation fails, so scripts can gate
on it.`,
	Example: `  engram validate Service name=auth port=8080
  engram validate Service --props '{"name": "auth"}' || echo rejected`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	props, err := parseProps(validateProps, args[1:])
	if err != nil {
		return err
	}

	normalized, err := a.pipeline.Validate(args[0], props)
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		if jsonOut {
			_ = emitJSON(verr)
		} else {
			fmt.Fprintf(os.Stderr, "Invalid %s:\n", verr.Label)
			for _, f := range verr.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Path, f.Message)
			}
		}
		a.close()
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	logger.Debug("Validation passed", zap.String("label", args[0]))
	if jsonOut {
		return emitJSON(map[string]interface{}{"valid": true, "normalized": normalized})
	}
	fmt.Printf("Valid %s\n", args[0])
	return nil
}

func init() {
	upsertCmd.Flags().StringVar(&upsertID, "id", "", "Entity id (empty creates a new entity)")
	upsertCmd.Flags().StringVar(&upsertProps, "props", "", "Properties as a JSON object")
	relateCmd.Flags().StringVar(&relateProps, "props", "", "Edge properties as a JSON object")
	validateCmd.Flags().StringVar(&validateProps, "props", "", "Properties as a JSON object")
}
