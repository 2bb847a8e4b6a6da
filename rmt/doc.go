// Package rmt drives one transmit channel of a pulse-train peripheral.
//
// A Controller wraps a Peripheral and hands out at most one Handle per
// physical channel. A Handle checks a pulse sequence against the channel's
// transmit memory, submits it and waits for the hardware to finish:
//
//	Idle --Transmit--> Busy --done/error--> Idle
//	Busy --deadline--> Faulted --Recover--> Idle
package rmt
