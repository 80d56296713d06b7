package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/internal/printer"
	"github.com/hivelab/comb/pkg/manifest"
)

var (
	elementsJSON bool
	elementsTier string
)

var elementsCmd = &cobra.Command{
	Use:   "elements",
	Short: "Browse the element catalog",
	Long: `Browse the built-in element catalog.

Lists every element with its tier, category, and declared actions.
Use subcommands for details or to validate a comb.yml against the catalog.

Examples:
  # List all elements
  comb elements

  # Only universal elements
  comb elements --tier universal

  # Full manifest of one element
  comb elements describe poll-element

  # Check comb.yml element references and required config
  comb elements validate`,
	RunE: runElementsList,
}

var elementsDescribeCmd = &cobra.Command{
	Use:   "describe ELEMENT_ID",
	Short: "Show the full manifest of an element",
	Args:  cobra.ExactArgs(1),
	RunE:  runElementsDescribe,
}

var elementsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate comb.yml against the element catalog",
	RunE:  runElementsValidate,
}

func init() {
	elementsCmd.Flags().BoolVar(&elementsJSON, "json", false, "Output in JSON format")
	elementsCmd.Flags().StringVar(&elementsTier, "tier", "", "Filter by tier (universal, connected, space)")
	elementsCmd.AddCommand(elementsDescribeCmd)
	elementsCmd.AddCommand(elementsValidateCmd)
	rootCmd.AddCommand(elementsCmd)
}

func runElementsList(cmd *cobra.Command, args []string) error {
	registry := manifest.Default()

	var elements []*manifest.ElementManifest
	if elementsTier != "" {
		tier := manifest.Tier(elementsTier)
		if err := tier.Validate(); err != nil {
			return printer.Error(
				"invalid tier",
				fmt.Sprintf("Unknown tier: %s", elementsTier),
				[]string{"Valid tiers: universal, connected, space"},
			)
		}
		elements = registry.ByTier(tier)
	} else {
		elements = registry.All()
	}

	sort.Slice(elements, func(i, j int) bool {
		return elements[i].ElementID < elements[j].ElementID
	})

	if elementsJSON {
		data, err := json.MarshalIndent(elements, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal catalog: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%-20s %-10s %-8s %-10s %s\n", "ELEMENT", "TIER", "CATEGORY", "STANDALONE", "ACTIONS")
	for _, m := range elements {
		standalone := "no"
		if m.CanBeStandalone {
			standalone = "yes"
		}
		actions := "-"
		if len(m.ExecuteActions) > 0 {
			actions = strings.Join(m.ExecuteActions, ", ")
		}
		fmt.Printf("%-20s %-10s %-8s %-10s %s\n", m.ElementID, m.Tier, m.Category, standalone, actions)
	}
	fmt.Printf("\n%d elements in catalog\n", len(elements))

	return nil
}

func runElementsDescribe(cmd *cobra.Command, args []string) error {
	registry := manifest.Default()

	canonical, ok := registry.Resolve(args[0])
	if !ok {
		return printer.Error(
			fmt.Sprintf("element '%s' not found", args[0]),
			"No element with this ID or alias exists in the catalog.",
			[]string{"Run 'comb elements' to see the full catalog"},
		)
	}

	data, err := json.MarshalIndent(registry.Get(canonical), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	fmt.Println(string(data))

	return nil
}

func runElementsValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("comb.yml")
	if err != nil {
		return printer.Error(
			"comb.yml not found or invalid",
			fmt.Sprintf("Error: %v", err),
			[]string{"Run 'comb init' to create a starter configuration"},
		)
	}

	if err := cfg.ValidateElements(manifest.Default()); err != nil {
		return printer.Error(
			"validation failed",
			err.Error(),
			[]string{"Run 'comb elements describe <element>' to see required config fields"},
		)
	}

	printer.Success("comb.yml is valid: %d element instances reference the catalog correctly\n", len(cfg.Elements))

	return nil
}
