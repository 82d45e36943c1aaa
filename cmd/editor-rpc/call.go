package main

import (
	"context"
	"editor-rpc/client"
	"editor-rpc/config"
	"editor-rpc/registry"
	"editor-rpc/transport"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var callCmd = &cobra.Command{
	Use:   "call <command> [json-arguments]",
	Short: "Send one command and print its result as JSON",
	Example: `  editor-rpc call ping
  editor-rpc call updateSetting '{"key":"editor.tabSize","value":2}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the server answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var names []string
		if err := withClient(cmd, func(ctx context.Context, c *client.Client) error {
			return c.Call(ctx, "listCommands", nil, &names)
		}); err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func runCall(cmd *cobra.Command, args []string) error {
	var arguments map[string]any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		raw, err := c.Send(ctx, args[0], arguments)
		if err != nil {
			return err
		}
		var pretty any
		if err := json.Unmarshal(raw, &pretty); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(pretty)
	})
}

// withClient connects using the resolved configuration, runs fn and closes.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	dialer, closeDialer, err := newDialer(cfg, log)
	if err != nil {
		return err
	}
	defer closeDialer()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(dialer, cfg.ClientConfig(log))
	dctx, dcancel := context.WithTimeout(ctx, cfg.DialTimeout)
	err = c.Connect(dctx)
	dcancel()
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

// newDialer discovers the server through etcd when endpoints are configured
// and dials the configured address otherwise.
func newDialer(cfg *config.Config, log *zap.Logger) (transport.Dialer, func(), error) {
	if len(cfg.EtcdEndpoints) == 0 {
		d, err := transport.NewDialer(cfg.Network, cfg.Address)
		return d, func() {}, err
	}

	reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, log)
	if err != nil {
		return nil, nil, fmt.Errorf("etcd: %w", err)
	}
	return &client.DiscoveryDialer{
		Registry: reg,
		Service:  cfg.EtcdService,
		Logger:   log,
	}, func() { reg.Close() }, nil
}
