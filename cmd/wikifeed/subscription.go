package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/wikifeed/pkg/storage"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/cuemby/wikifeed/pkg/watch"
	"github.com/spf13/cobra"
)

// Subscription commands operate on the database directly. While the engine
// is running it holds the database lock; use the admin API instead.
var subscriptionCmd = &cobra.Command{
	Use:     "subscription",
	Aliases: []string{"sub"},
	Short:   "Manage stored subscriptions",
}

var subscriptionSetCmd = &cobra.Command{
	Use:   "set ID --source WIKI --kinds KIND[,KIND...]",
	Short: "Create or replace a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		kinds, _ := cmd.Flags().GetStringSlice("kinds")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sub := types.NewSubscription(types.SubscriberID(args[0]), source, kinds...)
		if err := store.PutSubscription(&sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		fmt.Printf("✓ Subscription %s: %s [%s]\n", sub.SubscriberID, sub.SourceID, strings.Join(sub.InterestedKinds, ", "))
		if len(sub.InterestedKinds) == 0 {
			fmt.Println("  (no kinds selected, nothing will be delivered)")
		}
		return nil
	},
}

var subscriptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		subs, err := store.ListSubscriptions()
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Println("No subscriptions")
			return nil
		}

		fmt.Printf("%-24s %-16s %s\n", "ID", "SOURCE", "KINDS")
		for _, sub := range subs {
			fmt.Printf("%-24s %-16s %s\n", sub.SubscriberID, sub.SourceID, strings.Join(sub.InterestedKinds, ","))
		}
		return nil
	},
}

var subscriptionRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove a subscription",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteSubscription(types.SubscriberID(args[0])); err != nil {
			return err
		}
		fmt.Printf("✓ Subscription %s removed\n", args[0])
		return nil
	},
}

var subscriptionImportCmd = &cobra.Command{
	Use:   "import -f FILE",
	Short: "Import subscriptions from a YAML file",
	Long: `Import subscriptions from a YAML file into the database.

Example file:
  subscriptions:
    - id: chat-1
      source: enwiki
      kinds: [edit, delete]

Existing subscriptions with the same id are replaced; others are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		subs, err := watch.LoadFile(filename)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for i := range subs {
			if err := store.PutSubscription(&subs[i]); err != nil {
				return fmt.Errorf("failed to save subscription %s: %w", subs[i].SubscriberID, err)
			}
		}
		fmt.Printf("✓ Imported %d subscriptions\n", len(subs))
		return nil
	},
}

func init() {
	subscriptionCmd.AddCommand(subscriptionSetCmd)
	subscriptionCmd.AddCommand(subscriptionListCmd)
	subscriptionCmd.AddCommand(subscriptionRemoveCmd)
	subscriptionCmd.AddCommand(subscriptionImportCmd)

	subscriptionSetCmd.Flags().String("source", "", "Wiki database name, e.g. enwiki")
	subscriptionSetCmd.Flags().StringSlice("kinds", nil, "Event kinds, e.g. edit,delete,block")
	_ = subscriptionSetCmd.MarkFlagRequired("source")

	subscriptionImportCmd.Flags().StringP("file", "f", "", "YAML file to import (required)")
	_ = subscriptionImportCmd.MarkFlagRequired("file")
}

func openStore() (*storage.BoltStore, error) {
	if cfg.Store.DataDir == "" {
		return nil, fmt.Errorf("--data-dir (or WIKIFEED_STORE_DATA_DIR) is required")
	}
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("%w (is wikifeed run holding the database?)", err)
	}
	return store, nil
}
