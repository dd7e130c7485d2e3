// Package gpio provides the dehydrator's digital I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device: buttons and
// the rotary encoder are edge-event driven, heater and fan are outputs.
// The fake implementation allows testing without hardware.
package gpio

// Default pin assignments (BCM numbering).
const (
	DefaultChip     = "gpiochip0"
	DefaultPinHeat  = 17 // heater relay
	DefaultPinFan   = 27 // blower fan
	DefaultPinStart = 5  // start/stop button, active low
	DefaultPinMode  = 6  // encoder push switch, active low
	DefaultPinClk   = 22 // encoder A
	DefaultPinDT    = 23 // encoder B
)

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
