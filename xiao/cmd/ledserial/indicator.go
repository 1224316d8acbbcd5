package main

import (
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// indicator is the onboard RGB LED of the XIAO RP2040. Its data line is
// GPIO12 and it only lights while GPIO11 powers it.
//
// https://wiki.seeedstudio.com/XIAO-RP2040-with-Arduino/
type indicator struct {
	led   ws2812.Device
	power machine.Pin
}

// Indicator colors, as green, red, blue.
var (
	indicatorWaiting = [3]byte{8, 0, 0}
	indicatorFailed  = [3]byte{0, 32, 0}
)

func newIndicator() *indicator {
	power := machine.GPIO11
	power.Configure(machine.PinConfig{Mode: machine.PinOutput})
	power.Low()

	data := machine.GPIO12
	data.Configure(machine.PinConfig{Mode: machine.PinOutput})

	return &indicator{led: ws2812.New(data), power: power}
}

func (i *indicator) show(grb [3]byte) {
	i.power.High()
	i.led.Write(grb[:])
}

func (i *indicator) off() {
	i.power.Low()
}
