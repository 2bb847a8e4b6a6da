package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/smartled/internal/config"
	"github.com/coreman2200/smartled/internal/led"
	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
	"github.com/coreman2200/smartled/rmt/serialrmt"
	"github.com/coreman2200/smartled/rmt/spirmt"
	"github.com/coreman2200/smartled/smartled"
)

// openDriver builds the frame sink cfg asks for.
func openDriver(cfg *config.Config) (led.Driver, error) {
	switch cfg.Driver {
	case "sim":
		return led.NewSim(cfg.Count), nil
	case "nrz":
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		port, err := spireg.Open(cfg.SPI.Dev)
		if err != nil {
			return nil, fmt.Errorf("open spi %q: %w", cfg.SPI.Dev, err)
		}
		d, err := led.NewNRZ(port, cfg.Count, physic.Frequency(cfg.SPI.SpeedHz)*physic.Hertz)
		if err != nil {
			_ = port.Close()
			return nil, err
		}
		return d, nil
	case "strip":
		return openStrip(cfg)
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

func openStrip(cfg *config.Config) (*led.Strip, error) {
	v, err := smartled.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	opts := &smartled.Opts{NumPixels: cfg.Count}
	if cfg.ColorOrder != "" {
		if opts.Order, err = pulse.ParseOrder(cfg.ColorOrder); err != nil {
			return nil, err
		}
	}

	var (
		p     rmt.Peripheral
		pin   gpio.PinOut
		trans io.Closer
	)
	switch cfg.Backend {
	case "spi":
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		port, err := spireg.Open(cfg.SPI.Dev)
		if err != nil {
			return nil, fmt.Errorf("open spi %q: %w", cfg.SPI.Dev, err)
		}
		trans = port
		if p, err = spirmt.New(port, &spirmt.Opts{
			Freq:     physic.Frequency(cfg.SPI.SpeedHz) * physic.Hertz,
			Capacity: cfg.SPI.Capacity,
		}); err != nil {
			_ = port.Close()
			return nil, err
		}
		if cfg.Pin != "" {
			if pin = gpioreg.ByName(cfg.Pin); pin == nil {
				_ = port.Close()
				return nil, fmt.Errorf("unknown pin %q", cfg.Pin)
			}
		}
	case "serial":
		b, err := serialrmt.Open(cfg.Serial.Port, &serialrmt.Opts{
			Baud:     cfg.Serial.Baud,
			Clock:    physic.Frequency(cfg.Serial.ClockHz) * physic.Hertz,
			Channels: cfg.Serial.Channels,
			Capacity: cfg.Serial.Capacity,
		})
		if err != nil {
			return nil, err
		}
		trans, p = b, b
		if cfg.Pin != "" {
			n, err := strconv.Atoi(cfg.Pin)
			if err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("bridge pin %q is not a GPIO number", cfg.Pin)
			}
			pin = serialrmt.Pin(n)
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	dev, err := smartled.New(rmt.New(p), cfg.Channel, pin, v, opts)
	if err != nil {
		_ = trans.Close()
		return nil, err
	}
	log.Info().Str("dev", dev.String()).Str("backend", cfg.Backend).Int("count", dev.NumPixels()).
		Str("timing", dev.Timing().String()).Msg("strip ready")
	return led.NewStrip(dev, cfg.Timeout(), trans), nil
}
