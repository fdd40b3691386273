package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/johngerving/dental-chat.git/pkg/app"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	v := app.NewViper()
	d := app.Defaults()

	cmd := &cobra.Command{
		Use:           "dental-chat",
		Short:         "Serve the DentalBot chat frontend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := app.LoadConfig(v)
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}

	cmd.Flags().String("api-base", d.APIBase, "chat backend base URL, empty for same origin (env CHAT_API_BASE)")
	cmd.Flags().String("api-upstream", d.APIUpstream, "backend that /api/* is proxied to when --api-base is empty (env CHAT_API_UPSTREAM)")
	cmd.Flags().String("addr", d.ListenAddr, "listen address (env CHAT_LISTEN_ADDR)")
	cmd.Flags().String("flow", string(d.DefaultFlow), "flow used when the form does not pick one (env CHAT_DEFAULT_FLOW)")
	cmd.Flags().Duration("stream-ttl", d.StreamTTL, "how long a finished reply stream stays replayable (env CHAT_STREAM_TTL)")

	return cmd
}
