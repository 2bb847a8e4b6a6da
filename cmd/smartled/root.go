package main

import (
	"errors"
	"io/fs"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coreman2200/smartled/internal/config"
)

type options struct {
	configPath string
	logLevel   string
	capacity   int
	flags      config.Config
	cfg        *config.Config
}

// overrides copies a flag's value over the config file when the flag was
// given explicitly.
var overrides = map[string]func(dst, src *config.Config){
	"driver":   func(d, s *config.Config) { d.Driver = s.Driver },
	"backend":  func(d, s *config.Config) { d.Backend = s.Backend },
	"variant":  func(d, s *config.Config) { d.Variant = s.Variant },
	"count":    func(d, s *config.Config) { d.Count = s.Count },
	"channel":  func(d, s *config.Config) { d.Channel = s.Channel },
	"pin":      func(d, s *config.Config) { d.Pin = s.Pin },
	"color":    func(d, s *config.Config) { d.ColorOrder = s.ColorOrder },
	"timeout":  func(d, s *config.Config) { d.TimeoutMs = s.TimeoutMs },
	"spi-dev":  func(d, s *config.Config) { d.SPI.Dev = s.SPI.Dev },
	"spi-hz":   func(d, s *config.Config) { d.SPI.SpeedHz = s.SPI.SpeedHz },
	"port":     func(d, s *config.Config) { d.Serial.Port = s.Serial.Port },
	"baud":     func(d, s *config.Config) { d.Serial.Baud = s.Serial.Baud },
	"capacity": func(d, s *config.Config) { d.SPI.Capacity, d.Serial.Capacity = s.SPI.Capacity, s.Serial.Capacity },
}

func newRootCmd() *cobra.Command {
	o := &options{flags: *config.Default()}
	def := config.Default()
	root := &cobra.Command{
		Use:   "smartled",
		Short: "WS2812/SK6812 strip driver",
		Long: `smartled encodes pixels into NRZ pulse trains and sends them to an LED strip.

Drivers:
  strip  pulse peripheral over SPI (--backend spi) or a serial RMT bridge (--backend serial)
  nrz    periph nrzled over SPI, WS2812 only
  sim    log frame summaries, no hardware

Settings come from flags, then the config file, then flags given explicitly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.resolve(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "config.yaml", "path to config.yaml")
	f.StringVar(&o.logLevel, "log-level", "info", "log level: debug | info | warn | error")
	f.StringVarP(&o.flags.Driver, "driver", "d", def.Driver, "driver: strip | nrz | sim")
	f.StringVar(&o.flags.Backend, "backend", def.Backend, "strip backend: spi | serial")
	f.StringVarP(&o.flags.Variant, "variant", "v", def.Variant, "LED family: WS2812 | WS2812B | WS2811 | SK6812 | SK6812RGBW")
	f.IntVarP(&o.flags.Count, "count", "n", def.Count, "number of LEDs")
	f.IntVar(&o.flags.Channel, "channel", def.Channel, "pulse peripheral channel")
	f.StringVar(&o.flags.Pin, "pin", def.Pin, "output pin name, or bridge GPIO number with --backend serial")
	f.StringVar(&o.flags.ColorOrder, "color", def.ColorOrder, "wire color order override, e.g. GRB, RGB")
	f.IntVar(&o.flags.TimeoutMs, "timeout", def.TimeoutMs, "per frame timeout in ms, 0 waits forever")
	f.StringVar(&o.flags.SPI.Dev, "spi-dev", def.SPI.Dev, "SPI port, empty for the first one")
	f.IntVar(&o.flags.SPI.SpeedHz, "spi-hz", def.SPI.SpeedHz, "SPI clock in Hz")
	f.StringVarP(&o.flags.Serial.Port, "port", "p", def.Serial.Port, "serial bridge device")
	f.IntVarP(&o.flags.Serial.Baud, "baud", "b", def.Serial.Baud, "serial bridge baud rate")
	f.IntVar(&o.capacity, "capacity", 0, "pulse codes per frame, 0 for the backend default")

	root.AddCommand(newServeCmd(o), newFillCmd(o), newPatternCmd(o), newTimingCmd(o))
	return root
}

func (o *options) resolve(cmd *cobra.Command) error {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen})
	lvl, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)

	if o.capacity > 0 {
		o.flags.SPI.Capacity, o.flags.Serial.Capacity = o.capacity, o.capacity
	}
	flagged := o.flags
	cfg := &flagged

	if c, err := config.Load(o.configPath, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return err
		}
		log.Debug().Str("path", o.configPath).Msg("no config file; using flags")
	} else {
		cfg = c
		cmd.Flags().Visit(func(fl *pflag.Flag) {
			if apply, ok := overrides[fl.Name]; ok {
				apply(cfg, &o.flags)
			}
		})
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}
