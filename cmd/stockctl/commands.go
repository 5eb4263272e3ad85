package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/crm-inventory/config"
	"github.com/warp/crm-inventory/crm"
	"github.com/warp/crm-inventory/inventory"
	"github.com/warp/crm-inventory/logging"
	"github.com/warp/crm-inventory/store/sqlite"
)

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

// env is what every subcommand works against. close releases the store.
type env struct {
	svc    *crm.Service
	reader *inventory.Reader
	logger *logrus.Logger
	close  func() error
}

func (o *rootOptions) open(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := logging.NewWithOutput(level, "text", cmd.ErrOrStderr())

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	store.MaxAttempts = cfg.Tx.MaxAttempts

	svc := crm.NewService(store, logger)
	svc.Healer.Concurrency = cfg.Heal.Concurrency
	return &env{
		svc:    svc,
		reader: inventory.NewReader(store, logger),
		logger: logger,
		close:  store.Close,
	}, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "stockctl",
		Short: "Inspect and heal CRM inventory stock",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(
		newStockCommand(opts),
		newHealCommand(opts),
		newHealAllCommand(opts),
		newResetCommand(opts),
	)

	return rootCmd
}

func identityFlags(cmd *cobra.Command, id *inventory.Identity) {
	cmd.Flags().StringVar(&id.Name, "name", "", "item name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&id.Category, "category", "", "item category")
	cmd.Flags().StringVar(&id.MasterID, "master-id", "", "master item ID")
}

func newStockCommand(opts *rootOptions) *cobra.Command {
	var id inventory.Identity
	var fromHistory bool

	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Print the latest stock for one item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			read := e.reader.LatestStock
			if fromHistory {
				read = e.reader.StockFromHistory
			}
			stock, err := read(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stock.String())
			return nil
		},
	}

	identityFlags(cmd, &id)
	cmd.Flags().BoolVar(&fromHistory, "from-history", false, "sum history instead of reading the aggregate")

	return cmd
}

func newHealCommand(opts *rootOptions) *cobra.Command {
	var id inventory.Identity

	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Recompute running stock and the aggregate for one item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.svc.Healer.Heal(cmd.Context(), inventory.HealInput{Identity: id})
			if err != nil {
				return err
			}
			printHealResult(cmd, res)
			return nil
		},
	}

	identityFlags(cmd, &id)

	return cmd
}

func newHealAllCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heal-all",
		Short: "Heal every item present in the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			results, err := e.svc.Healer.HealAll(cmd.Context())
			if err != nil {
				return err
			}
			for _, res := range results {
				printHealResult(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "healed %d\n", len(results))
			return nil
		},
	}
}

func newResetCommand(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero every aggregate and item stock and delete inventory history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes inventory history; pass --yes to confirm")
			}
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.svc.ResetInventory(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d movements\n", res.DeletedMovements)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")

	return cmd
}

func printHealResult(cmd *cobra.Command, res *inventory.HealResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s\tstock=%s\tin=%s\tout=%s\trecords=%d\tcorrections=%d\n",
		res.Identity, res.CurrentStock, res.TotalInflow, res.TotalOutflow, res.Records, len(res.Corrections))
}
