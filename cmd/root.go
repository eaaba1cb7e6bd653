// Package cmd wires the vault service into a command line interface. Every
// command opens the sqlite store under the data folder, runs one operation
// and exits; serialization across processes is provided by sqlite itself.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfg "github.com/vestvault/go-vestvault/config"

	"github.com/vestvault/go-vestvault/common/types"
	"github.com/vestvault/go-vestvault/custody"
	"github.com/vestvault/go-vestvault/sql"
)

// Version is set at build time.
var Version string

var config = cfg.DefaultConfig()

var (
	flagCaller   string
	flagAsset    string
	flagAmount   uint64
	flagUnlockIn time.Duration
	flagCliff    time.Duration
	flagAdmin    string
	flagBenef    string
	flagMaxDur   time.Duration
)

// Cmd is the root command of the vault CLI.
var Cmd = &cobra.Command{
	Use:           "vestvault",
	Short:         "single-beneficiary vesting custody vault",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	Cmd.PersistentFlags().StringVarP(&config.ConfigFile,
		"config", "c", config.ConfigFile, "Load configuration from file")
	Cmd.PersistentFlags().StringVarP(&config.DataDirParent, "data-folder", "d",
		config.DataDirParent, "Specify data directory for vestvault")
	Cmd.PersistentFlags().StringVar(&config.LOGGING.Encoder, "log-encoder",
		config.LOGGING.Encoder, "Log as JSON instead of plain text")
	Cmd.PersistentFlags().StringVar(&config.LOGGING.Level, "log-level",
		config.LOGGING.Level, "Minimal log level")
	Cmd.PersistentFlags().StringVar(&config.NetworkHRP, "network-hrp",
		config.NetworkHRP, "Human readable prefix of bech32 addresses")

	create := &cobra.Command{
		Use:   "create",
		Short: "create a vault for an administrator/beneficiary pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCustody(func(c *custody.Custody) error {
				admin, err := types.StringToAddress(flagAdmin)
				if err != nil {
					return fmt.Errorf("administrator: %w", err)
				}
				benef, err := types.StringToAddress(flagBenef)
				if err != nil {
					return fmt.Errorf("beneficiary: %w", err)
				}
				address, err := c.CreateVault(admin, benef, flagMaxDur)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), address.String())
				return nil
			})
		},
	}
	create.Flags().StringVar(&flagAdmin, "admin", "", "administrator address")
	create.Flags().StringVar(&flagBenef, "beneficiary", "", "beneficiary address")
	create.Flags().DurationVar(&flagMaxDur, "max-duration", 0,
		"policy ceiling on the vesting horizon, defaults to the configured one")
	Cmd.AddCommand(create)

	deposit := &cobra.Command{
		Use:   "deposit <vault>",
		Short: "credit the vault's balance of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCustody(func(c *custody.Custody) error {
				address, err := types.StringToAddress(args[0])
				if err != nil {
					return err
				}
				asset, err := parseAsset(flagAsset)
				if err != nil {
					return err
				}
				return c.Deposit(address, asset, flagAmount)
			})
		},
	}
	deposit.Flags().StringVar(&flagAsset, "asset", "coin", "asset id, `coin` for the native coin")
	deposit.Flags().Uint64Var(&flagAmount, "amount", 0, "amount to deposit")
	Cmd.AddCommand(deposit)

	configure := &cobra.Command{
		Use:   "configure <vault> {cliffless|linear|cliff}",
		Short: "lock the vesting schedule, at most once per vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCustody(func(c *custody.Custody) error {
				address, err := types.StringToAddress(args[0])
				if err != nil {
					return err
				}
				caller, err := types.StringToAddress(flagCaller)
				if err != nil {
					return fmt.Errorf("caller: %w", err)
				}
				unlock := time.Now().Add(flagUnlockIn)
				switch args[1] {
				case "cliffless":
					return c.ConfigureCliffless(address, caller, unlock)
				case "linear":
					return c.ConfigureLinear(address, caller, unlock)
				case "cliff":
					return c.ConfigureLinearWithCliff(address, caller, unlock, flagCliff)
				default:
					return fmt.Errorf("unknown schedule mode %q", args[1])
				}
			})
		},
	}
	configure.Flags().StringVar(&flagCaller, "caller", "", "caller address, must be the administrator")
	configure.Flags().DurationVar(&flagUnlockIn, "unlock-in", 0, "unlock point, as a duration from now")
	configure.Flags().DurationVar(&flagCliff, "cliff", 0, "cliff duration for the cliff mode")
	Cmd.AddCommand(configure)

	withdraw := &cobra.Command{
		Use:   "withdraw <vault>",
		Short: "withdraw the vested delta of an asset to the beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCustody(func(c *custody.Custody) error {
				address, err := types.StringToAddress(args[0])
				if err != nil {
					return err
				}
				caller, err := types.StringToAddress(flagCaller)
				if err != nil {
					return fmt.Errorf("caller: %w", err)
				}
				asset, err := parseAsset(flagAsset)
				if err != nil {
					return err
				}
				delta, err := c.Withdraw(address, caller, asset)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), delta)
				return nil
			})
		},
	}
	withdraw.Flags().StringVar(&flagCaller, "caller", "", "caller address, must be the beneficiary")
	withdraw.Flags().StringVar(&flagAsset, "asset", "coin", "asset id, `coin` for the native coin")
	Cmd.AddCommand(withdraw)

	vested := &cobra.Command{
		Use:   "vested <vault>",
		Short: "show the cumulative vested amount of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCustody(func(c *custody.Custody) error {
				address, err := types.StringToAddress(args[0])
				if err != nil {
					return err
				}
				asset, err := parseAsset(flagAsset)
				if err != nil {
					return err
				}
				amount, err := c.VestedAmount(address, asset)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), amount)
				return nil
			})
		},
	}
	vested.Flags().StringVar(&flagAsset, "asset", "coin", "asset id, `coin` for the native coin")
	Cmd.AddCommand(vested)

	status := &cobra.Command{
		Use:   "status <vault>",
		Short: "show the vault's schedule, balances and withdrawals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCustody(func(c *custody.Custody) error {
				address, err := types.StringToAddress(args[0])
				if err != nil {
					return err
				}
				status, err := c.Status(address)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "administrator: %s\n", status.Administrator.String())
				fmt.Fprintf(out, "beneficiary:   %s\n", status.Beneficiary.String())
				fmt.Fprintf(out, "max duration:  %s\n", status.MaxDuration)
				if status.Schedule.Locked {
					fmt.Fprintf(out, "schedule:      %s -> %s\n", status.Schedule.Start, status.Schedule.Unlock)
				} else {
					fmt.Fprintln(out, "schedule:      not configured")
				}
				for asset, balance := range status.Balances {
					fmt.Fprintf(out, "balance %s: %d (withdrawn %d)\n", asset, balance, status.Withdrawn[asset])
				}
				return nil
			})
		},
	}
	Cmd.AddCommand(status)
}

func withCustody(op func(*custody.Custody) error) error {
	loaded, err := cfg.LoadConfig(config.ConfigFile, viper.New())
	if err != nil {
		return err
	}
	// flags win over the config file
	if config.DataDirParent != "" {
		loaded.DataDirParent = config.DataDirParent
	}
	loaded.LOGGING = config.LOGGING
	loaded.NetworkHRP = config.NetworkHRP
	config = loaded

	types.SetAddressHRP(config.NetworkHRP)
	logger, err := newLogger(config.LOGGING)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(config.DataDir(), 0o700); err != nil {
		return fmt.Errorf("create data dir %s: %w", config.DataDir(), err)
	}
	db, err := sql.Open("file:"+filepath.Join(config.DataDir(), "vault.sql"),
		sql.WithLogger(logger),
		sql.WithConnections(config.DatabaseConnections),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	if flagMaxDur == 0 {
		flagMaxDur = config.MaxDuration
	}
	return op(custody.New(db, custody.WithLogger(logger)))
}

func newLogger(logging cfg.LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", logging.Level, err)
	}
	var encoder zapcore.Encoder
	switch logging.Encoder {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core), nil
}

func parseAsset(src string) (types.AssetID, error) {
	if src == "" || src == "coin" {
		return types.CoinAsset, nil
	}
	address, err := types.StringToAddress(src)
	if err != nil {
		return types.AssetID{}, fmt.Errorf("asset: %w", err)
	}
	return types.AssetID(address), nil
}
