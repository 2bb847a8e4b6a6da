package diagnostics

import (
	"errors"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// FromError explains a driver error. A nil error yields an Info diagnostic.
func FromError(err error) Diagnostic {
	if err == nil {
		return Diagnostic{Severity: Info, Code: "DRIVER.OK", Summary: "Frame sent"}
	}
	d := Diagnostic{Detail: err.Error()}
	var tooLarge *rmt.BufferTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		d.Severity, d.Code, d.Summary = Err, "RMT.BUFFER_TOO_LARGE", "Frame does not fit the channel memory"
		d.Evidence = map[string]any{"required": tooLarge.Required, "capacity": tooLarge.Capacity}
		d.LikelyCauses = []string{"LED count larger than the channel can hold", "RGBW variant selected for an RGB sized buffer"}
		d.SuggestedFixes = []string{"Lower count", "Raise the backend capacity", "Split the strip across channels"}
	case errors.Is(err, rmt.ErrTimeout):
		d.Severity, d.Code, d.Summary = Err, "RMT.TIMEOUT", "Transmission did not complete in time"
		d.LikelyCauses = []string{"Peripheral clock not running", "Serial bridge stalled or unplugged", "Timeout shorter than the frame"}
		d.SuggestedFixes = []string{"Check the bridge link", "Raise timeout_ms", "Power cycle the bridge"}
	case errors.Is(err, rmt.ErrChannelFaulted):
		d.Severity, d.Code, d.Summary = Err, "RMT.FAULTED", "Channel is faulted after an earlier timeout"
		d.SuggestedFixes = []string{"Recover the channel before the next frame"}
	case errors.Is(err, rmt.ErrTransmissionFailed):
		d.Severity, d.Code, d.Summary = Err, "RMT.TX_FAILED", "Hardware reported a transmission error"
		d.LikelyCauses = []string{"Transmit memory underrun", "Noisy serial link"}
		d.SuggestedFixes = []string{"Lower the frame rate", "Use a shorter or shielded cable"}
	case errors.Is(err, rmt.ErrChannelBusy):
		d.Severity, d.Code, d.Summary = Warn, "RMT.BUSY", "Frame dropped, previous frame still in flight"
		d.SuggestedFixes = []string{"Lower fps"}
	case errors.Is(err, rmt.ErrChannelClaimed), errors.Is(err, rmt.ErrInvalidChannel):
		d.Severity, d.Code, d.Summary = Err, "RMT.CHANNEL", "Channel unavailable"
		d.SuggestedFixes = []string{"Pick another channel"}
	case errors.Is(err, rmt.ErrClosed):
		d.Severity, d.Code, d.Summary = Warn, "RMT.CLOSED", "Driver already closed"
	case errors.Is(err, pulse.ErrInvalidTiming):
		d.Severity, d.Code, d.Summary = Err, "PULSE.TIMING", "Clock cannot produce the LED timing"
		d.LikelyCauses = []string{"Clock too slow or divider too large", "SPI speed outside the variant's window"}
		d.SuggestedFixes = []string{"Use 80MHz with divider 1 on RMT", "Use 3.2MHz SPI for SK6812"}
	default:
		d.Severity, d.Code, d.Summary = Err, "DRIVER.ERROR", "Driver write failed"
	}
	return d
}
