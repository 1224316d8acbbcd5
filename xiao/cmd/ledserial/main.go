package main

import (
	"machine"
	"time"
)

const (
	stripPin  = machine.D10
	buttonPin = machine.D1
	statusPin = machine.LED
)

func main() {
	machine.Serial.Configure(machine.UARTConfig{})
	time.Sleep(100 * time.Millisecond)

	d := NewDevice(machine.Serial, stripPin, buttonPin, statusPin)
	d.Run()
}
