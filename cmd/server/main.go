// Command groupfiled runs one group file-sharing node: it joins a UDP
// multicast group, serves HELLO/LIST/GET/DEL/ADD over that channel, and
// streams file contents over per-transfer TCP connections negotiated
// through the same channel.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/iluksbr/groupfiled/internal/config"
	"github.com/iluksbr/groupfiled/internal/dispatcher"
	"github.com/iluksbr/groupfiled/internal/inventory"
	"github.com/iluksbr/groupfiled/internal/lifecycle"
	"github.com/iluksbr/groupfiled/internal/logging"
	"github.com/iluksbr/groupfiled/internal/mcast"
	"github.com/iluksbr/groupfiled/internal/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rf *config.RawFlags

	cmd := &cobra.Command{
		Use:   "groupfiled",
		Short: "Group file-sharing node over UDP multicast",
		Long: `groupfiled joins a UDP multicast group and advertises a shared
folder to every other node in the group. Peers discover files with
LIST, fetch them with GET, and publish new ones with ADD; transfers
themselves run over a per-file TCP connection negotiated through the
multicast channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rf.Resolve())
		},
	}

	rf = config.BindFlags(cmd.Flags())
	cmd.Flags().SortFlags = false
	pflag.CommandLine = cmd.Flags()

	return cmd
}

func run(cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel, os.Stderr)
	log.Info("starting groupfiled: group=%s port=%d folder=%s max-space=%d",
		cfg.MulticastGroup, cfg.CommandPort, cfg.SharedFolder, cfg.MaxSpace)

	inv, err := inventory.Index(cfg.SharedFolder, cfg.MaxSpace)
	if err != nil {
		return fmt.Errorf("indexing shared folder: %w", err)
	}
	log.Info("indexed shared folder: available=%d negative=%d", inv.Available(), inv.Negative())

	ep, err := mcast.Open(cfg.MulticastGroup, cfg.CommandPort)
	if err != nil {
		return fmt.Errorf("joining multicast group: %w", err)
	}
	if err := ep.Conn().SetReadBuffer(config.DefaultReadBuffer); err != nil {
		log.Warn("set read buffer: %v", err)
	}
	if err := ep.Conn().SetWriteBuffer(config.DefaultWriteBuffer); err != nil {
		log.Warn("set write buffer: %v", err)
	}

	m := metrics.New()
	m.AvailableSpace.Set(float64(inv.Available()))
	m.NegativeSpace.Set(float64(inv.Negative()))

	if cfg.MetricsAddr != "" {
		go func() {
			log.Info("serving metrics on %s", cfg.MetricsAddr)
			if err := m.Serve(cfg.MetricsAddr); err != nil {
				log.Error("metrics server stopped: %v", err)
			}
		}()
	}

	pending := lifecycle.NewPendingUploads()
	lc := lifecycle.New(ep, pending, log)

	d := dispatcher.New(ep, inv, cfg.MulticastGroup, pending, cfg.HandshakeTimeout, m, log)

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(lc.Context()) }()

	select {
	case err := <-runErr:
		lc.Shutdown()
		if err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
	case <-lc.Context().Done():
		lc.Shutdown()
		<-runErr
		log.Info("groupfiled stopped")
		os.Exit(1)
	}

	log.Info("groupfiled stopped")
	return nil
}
