// Package pulse translates LED color data into pulse descriptors for a
// pulse-train peripheral.
//
// Every WS281x/SK6812 bit is one high period followed by one low period. The
// high period is short for a 0 and long for a 1; a long low period (the reset)
// latches the frame. A Timing holds those periods in peripheral clock ticks.
package pulse
