package tollglow

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"libdb.so/tollglow/internal/button"
	"libdb.so/tollglow/internal/led"
	"libdb.so/tollglow/internal/ledvis"
	"libdb.so/tollglow/ledserial"
)

// controllerLink speaks ledserial to the LED controller. It drives the strip
// and the status LED, and feeds button edges to the classifier.
type controllerLink struct {
	conn   io.ReadWriter
	logger *slog.Logger

	wmu sync.Mutex
}

var (
	_ ledvis.Actuator  = (*controllerLink)(nil)
	_ button.StatusLED = (*controllerLink)(nil)
)

func newControllerLink(conn io.ReadWriter, logger *slog.Logger) *controllerLink {
	return &controllerLink{conn: conn, logger: logger}
}

// Initialize tells the controller how many LEDs the strip has.
func (l *controllerLink) Initialize(numLEDs int) error {
	return l.writePacket(ledserial.InitializePacket{NumLEDs: uint16(numLEDs)})
}

// WriteLEDs implements ledvis.Actuator.
func (l *controllerLink) WriteLEDs(leds led.LEDs) error {
	return l.writePacket(ledserial.SetPacket{Pix: leds.AsPixels()})
}

// SetStatusLED implements button.StatusLED.
func (l *controllerLink) SetStatusLED(on bool) error {
	return l.writePacket(ledserial.StatusPacket{On: on})
}

func (l *controllerLink) writePacket(p ledserial.IncomingPacket) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	if err := ledserial.WriteIncomingPacket(l.conn, p); err != nil {
		return errors.Wrapf(err, "failed to write %s packet", p.Type())
	}
	return nil
}

// readPackets handles packets from the controller until ctx is canceled or
// the controller reports a failure. Button edges are sent to levels as line
// levels: true while the button is up.
func (l *controllerLink) readPackets(ctx context.Context, levels chan<- bool) error {
	defer close(levels)

	for ctx.Err() == nil {
		p, err := ledserial.ReadOutgoingPacket(l.conn)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// Reads block without a timeout, so EOF means the controller is
			// gone.
			if errors.Is(err, io.EOF) {
				return errors.Wrap(err, "controller disconnected")
			}
			return errors.Wrap(err, "failed to read packet")
		}

		switch p := p.(type) {
		case ledserial.ButtonPacket:
			l.logger.Debug(
				"received button edge from controller",
				"pressed", p.Pressed)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case levels <- !p.Pressed:
			}

		case ledserial.AckPacket:
			l.logger.Debug(
				"received ack packet from controller",
				"acked_for", p.IncomingPacketType)

		case ledserial.LogPacket:
			l.logger.Info(
				"received log packet from controller",
				"message", p.Message)

		case ledserial.ErrorPacket:
			l.logger.Warn(
				"received error packet from controller",
				"message", p.Message)
			return errors.New("controller reported error")

		case ledserial.PanicPacket:
			l.logger.Error(
				"controller unrecoverably panicked",
				"message", p.Message)
			return errors.New("controller panicked")

		default:
			return errors.Errorf("received unknown packet from controller: %s", p.Type())
		}
	}

	return ctx.Err()
}
