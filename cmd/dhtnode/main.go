// Command dhtnode runs a standalone Mainline DHT node: it binds a UDP
// socket, optionally bootstraps off a peer list, and optionally serves
// other peers' queries.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mainline-dht/dhtnode/dht"
	"github.com/mainline-dht/dhtnode/dhtserver"
	"github.com/mainline-dht/dhtnode/internal/dhtlog"
)

func main() {
	app := &cli.App{
		Name:  "dhtnode",
		Usage: "run a Mainline BitTorrent DHT node",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 0, Usage: "UDP port to bind (0 = ephemeral)"},
			&cli.StringSliceFlag{Name: "bootstrap", Usage: "host:port of a bootstrap node, repeatable"},
			&cli.BoolFlag{Name: "read-only", Usage: "set BEP-43 read-only mode"},
			&cli.BoolFlag{Name: "serve", Usage: "answer other peers' queries via the bounded in-memory responder"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace, debug, info, warn, error"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return err
	}
	dhtlog.SetLevel(level)
	log := dhtlog.New("cmd")

	builder := dht.NewBuilder().
		Port(ctx.Int("port")).
		ReadOnly(ctx.Bool("read-only")).
		Bootstrap(ctx.StringSlice("bootstrap")...)

	if ctx.Bool("serve") {
		builder = builder.Server(dhtserver.NewDefaultServer())
	}

	facade, err := builder.Build()
	if err != nil {
		return err
	}
	if err := facade.Check(); err != nil {
		return err
	}

	info := facade.GetInfo()
	log.WithFields(logrus.Fields{
		"id":         info.Id,
		"local_addr": info.LocalAddr,
		"bootstrap":  strings.Join(ctx.StringSlice("bootstrap"), ","),
	}).Info("node started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	facade.Shutdown()
	return nil
}
