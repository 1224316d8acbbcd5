package main

import (
	"fmt"
	"machine"
	"time"

	"libdb.so/tollglow/ledserial"
	"tinygo.org/x/drivers/ws2812"
)

// buttonSettle is how long the button line must stay at a level before an
// edge is reported to the host.
const buttonSettle = 5 * time.Millisecond

// Device stores the current state of the device.
type Device struct {
	host      *hostLink
	led       ws2812.Device
	button    machine.Pin
	status    machine.Pin
	indicator *indicator

	numLEDs uint16
}

// NewDevice creates a new device.
func NewDevice(serial machine.Serialer, ledPin, buttonPin, statusPin machine.Pin) *Device {
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	buttonPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	statusPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &Device{
		host:      newHostLink(serial),
		led:       ws2812.New(ledPin),
		button:    buttonPin,
		status:    statusPin,
		indicator: newIndicator(),
	}
}

// Run runs the device loop forever.
func (d *Device) Run() {
	d.indicator.show(indicatorWaiting)
	go d.watchButton()

	for {
		p, err := d.readPacket()
		if err == nil {
			err = d.handlePacket(p)
		}
		if err != nil {
			d.indicator.show(indicatorFailed)
			d.logError(err)
		}
	}
}

// watchButton reports settled edges of the button line. The line is pulled
// up, so a low level means pressed.
func (d *Device) watchButton() {
	reported := d.button.Get()
	last := reported
	since := time.Now()

	for {
		time.Sleep(time.Millisecond)

		level := d.button.Get()
		if level != last {
			last = level
			since = time.Now()
			continue
		}

		if level != reported && time.Since(since) >= buttonSettle {
			reported = level
			d.sendPacket(ledserial.ButtonPacket{Pressed: !level})
		}
	}
}

func (d *Device) log(msg string) {
	d.sendPacket(ledserial.LogPacket{Message: msg})
}

func (d *Device) logError(err error) {
	d.sendPacket(ledserial.ErrorPacket{Message: err.Error()})
}

// sendPacket drops the packet if the host is gone; there is nobody left to
// tell.
func (d *Device) sendPacket(p ledserial.OutgoingPacket) {
	d.host.Send(p)
}

func (d *Device) readPacket() (ledserial.IncomingPacket, error) {
	p, err := ledserial.ReadIncomingPacket(d.host, ledserial.ReadContext{
		NumLEDs: d.numLEDs,
	})
	if err == nil {
		d.indicator.off()
	}
	return p, err
}

func (d *Device) handlePacket(p ledserial.IncomingPacket) error {
	switch p := p.(type) {
	case ledserial.InitializePacket:
		if p.NumLEDs < 1 {
			return fmt.Errorf("invalid number of LEDs: %d", p.NumLEDs)
		}
		d.numLEDs = p.NumLEDs
		d.clearLEDs()
		d.log(fmt.Sprintf("initialized %d LEDs", p.NumLEDs))

	case ledserial.ClearPacket:
		d.clearLEDs()

	case ledserial.SetPacket:
		d.led.Write(p.Pix)

	case ledserial.StatusPacket:
		d.status.Set(p.On)

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	d.sendPacket(ledserial.AckPacket{
		IncomingPacketType: p.Type(),
	})
	return nil
}

func (d *Device) clearLEDs() {
	for i := 0; i < int(d.numLEDs); i++ {
		d.led.WriteByte(0)
		d.led.WriteByte(0)
		d.led.WriteByte(0)
	}
}
