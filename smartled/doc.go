// Package smartled drives WS281x and SK6812 LED strips through one channel
// of a pulse-train peripheral.
//
// A Dev encodes a frame into pulse codes, checks it against the channel's
// transmit memory and sends it in a single transmission. Frames that do not
// fit are rejected with rmt.ErrBufferTooLarge; use BufferSize to size the
// channel for a strip.
//
// # Datasheets
//
// https://github.com/cpldcpu/light_ws2812/tree/master/Datasheets
package smartled
