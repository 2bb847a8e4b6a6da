package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/smartled"
)

// freqValue adapts physic.Frequency to pflag.Value.
type freqValue struct{ f *physic.Frequency }

func (v freqValue) String() string     { return v.f.String() }
func (v freqValue) Set(s string) error { return v.f.Set(s) }
func (v freqValue) Type() string       { return "frequency" }

func newTimingCmd(o *options) *cobra.Command {
	clock := 80 * physic.MegaHertz
	var divider uint8
	cmd := &cobra.Command{
		Use:   "timing",
		Short: "Print the pulse timing of the variant at a clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := smartled.ParseVariant(o.cfg.Variant)
			if err != nil {
				return err
			}
			t, err := pulse.NewTiming(clock, divider, v.Protocol())
			if err != nil {
				return err
			}
			p := v.Protocol()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "variant  %s (%s, %d bytes/LED)\n", v, v.Order(), v.Channels())
			fmt.Fprintf(w, "clock    %s / %d, tick %s\n", clock, divider, t.Tick())
			fmt.Fprintf(w, "bit 0    %s  (%s + %s)\n", t.Zero(), p.T0H, p.T0L)
			fmt.Fprintf(w, "bit 1    %s  (%s + %s)\n", t.One(), p.T1H, p.T1L)
			fmt.Fprintf(w, "reset    %s  (%s)\n", t.Reset(), p.Reset)
			fmt.Fprintf(w, "frame    %d codes for %d LEDs\n", smartled.BufferSize(o.cfg.Count, v.Channels()), o.cfg.Count)
			return nil
		},
	}
	cmd.Flags().Var(freqValue{&clock}, "clock", "peripheral source clock")
	cmd.Flags().Uint8Var(&divider, "divider", 1, "clock divider")
	return cmd
}
