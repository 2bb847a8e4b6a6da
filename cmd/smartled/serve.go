package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/smartled/internal/led"
	"github.com/coreman2200/smartled/internal/ws"
)

func newServeCmd(o *options) *cobra.Command {
	var (
		addr       string
		fps        int
		brightness float64
		simOnly    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket frame server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := o.cfg
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("fps") {
				cfg.FPS = fps
			}
			if cmd.Flags().Changed("brightness") {
				cfg.Brightness = brightness
			}
			if simOnly {
				cfg.Driver = "sim"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			state := ws.NewState(cfg.Count, cfg.FPS, cfg.Brightness)
			state.ConfigPath = o.configPath

			drv, err := openDriver(cfg)
			selected := cfg.Driver
			if err != nil {
				log.Warn().Err(err).Str("driver", cfg.Driver).Msg("driver init failed; falling back to SIM")
				drv, selected = led.NewSim(cfg.Count), "sim"
			}
			state.Driver = drv
			state.CurrentDriver = selected

			srv := &http.Server{
				Addr:         cfg.Addr,
				Handler:      state.Routes(),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go state.RunRenderLoop(ctx)

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Str("driver", selected).Msg("HTTP server starting")
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				_ = drv.Close()
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down")
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = srv.Shutdown(shutdown)
			if werr := drv.Write(make([]byte, cfg.Count*3)); werr != nil {
				log.Warn().Err(werr).Msg("blanking strip failed")
			}
			if cerr := drv.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	f.IntVar(&fps, "fps", 30, "target frames per second")
	f.Float64Var(&brightness, "brightness", 1, "global brightness 0..1")
	f.BoolVar(&simOnly, "sim-only", false, "force simulation (no hardware output)")
	return cmd
}
