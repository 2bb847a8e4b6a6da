package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/smartled/internal/led"
	"github.com/coreman2200/smartled/internal/pattern"
)

func newPatternCmd(o *options) *cobra.Command {
	var (
		fps   int
		loops int
		color string
	)
	names := make([]string, len(pattern.Kinds))
	for i, k := range pattern.Kinds {
		names[i] = string(k)
	}
	cmd := &cobra.Command{
		Use:       "pattern NAME",
		Short:     "Run a bring-up pattern: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := pattern.ParseKind(args[0])
			if err != nil {
				return err
			}
			plan := pattern.Plan{Kind: k, Loops: loops}
			if color != "" {
				if plan.Color, err = parseColor(color); err != nil {
					return err
				}
			}
			if fps <= 0 {
				return fmt.Errorf("invalid fps %d", fps)
			}
			drv, err := openDriver(o.cfg)
			if err != nil {
				return err
			}
			defer drv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runPattern(ctx.Done(), drv, pattern.NewRunner(plan), o.cfg.Count, time.Second/time.Duration(fps))
		},
	}
	f := cmd.Flags()
	f.IntVar(&fps, "fps", 4, "frames per second")
	f.IntVar(&loops, "loops", 0, "extra passes over the pattern")
	f.StringVar(&color, "rgb", "", "RRGGBB color for solid and chase")
	return cmd
}

// runPattern writes frames from r every period until it completes or quit
// closes. Frame errors are logged and the pattern goes on.
func runPattern(quit <-chan struct{}, drv led.Driver, r *pattern.Runner, count int, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	rgb := make([]byte, count*3)
	for frame := 0; r.Step(rgb); frame++ {
		if err := drv.Write(rgb); err != nil {
			log.Warn().Err(err).Int("frame", frame).Str("pattern", string(r.Kind())).Msg("frame failed")
		}
		select {
		case <-quit:
			return nil
		case <-ticker.C:
		}
	}
	log.Info().Str("pattern", string(r.Kind())).Msg("pattern complete")
	return nil
}
