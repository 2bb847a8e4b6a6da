package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFillCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fill RRGGBB",
		Short: "Set every LED to one color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseColor(args[0])
			if err != nil {
				return err
			}
			drv, err := openDriver(o.cfg)
			if err != nil {
				return err
			}
			rgb := make([]byte, o.cfg.Count*3)
			for i := 0; i < len(rgb); i += 3 {
				copy(rgb[i:], c[:])
			}
			err = drv.Write(rgb)
			if cerr := drv.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
}

// parseColor reads "RRGGBB", with an optional leading '#'.
func parseColor(s string) ([3]byte, error) {
	var c [3]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(b) != 3 {
		return c, fmt.Errorf("color %q is not RRGGBB", s)
	}
	copy(c[:], b)
	return c, nil
}
