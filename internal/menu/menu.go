// Package menu implements the foreground loop: the counter screen and the
// settings menu, both driven by button events.
package menu

import (
	"context"
	"log/slog"
	"strconv"

	"libdb.so/tollglow/internal/button"
	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/led"
)

// CountTitle is the heading of the counter screen.
const CountTitle = "Death Toll"

type screen uint8

const (
	countScreen screen = iota
	menuScreen
	optionScreen
)

func (s screen) String() string {
	switch s {
	case countScreen:
		return "count"
	case menuScreen:
		return "menu"
	case optionScreen:
		return "option"
	default:
		return "screen(" + strconv.Itoa(int(s)) + ")"
	}
}

// Option is one selectable setting in a menu item.
type Option struct {
	Label string
	Apply func(devstate.DeviceConfig) devstate.DeviceConfig
}

// Item is a menu entry holding a list of options.
type Item struct {
	Title   string
	Options []Option
}

func modeOption(label string, mode devstate.Mode) Option {
	return Option{label, func(c devstate.DeviceConfig) devstate.DeviceConfig {
		c.Mode = mode
		return c
	}}
}

func brightnessOption(label string, b uint8) Option {
	return Option{label, func(c devstate.DeviceConfig) devstate.DeviceConfig {
		c.Brightness = b
		return c
	}}
}

func rateOption(r devstate.RateModifier) Option {
	return Option{r.String(), func(c devstate.DeviceConfig) devstate.DeviceConfig {
		c.Rate = r
		return c
	}}
}

// DefaultItems is the settings menu of the device.
var DefaultItems = []Item{
	{
		Title: "Mode",
		Options: []Option{
			modeOption("sine", devstate.SineCycle{Frequency: 0.01}),
			modeOption("rainbow", devstate.Continuous{Rate: 5}),
			modeOption("random", devstate.Random{Rate: 1}),
			modeOption("fibonacci", devstate.Fibonacci{Rate: 1}),
			modeOption("white", devstate.Static{Color: led.White}),
			modeOption("red", devstate.Static{Color: led.Red}),
			modeOption("green", devstate.Static{Color: led.Green}),
			modeOption("blue", devstate.Static{Color: led.Blue}),
		},
	},
	{
		Title: "Brightness",
		Options: []Option{
			brightnessOption("low", devstate.BrightnessLow),
			brightnessOption("medium", devstate.BrightnessMedium),
			brightnessOption("high", devstate.BrightnessHigh),
			brightnessOption("max", devstate.BrightnessMax),
		},
	},
	{
		Title: "Speed",
		Options: []Option{
			rateOption(devstate.RateSlow),
			rateOption(devstate.RateModerate),
			rateOption(devstate.RateFast),
		},
	},
}

// Menu is the foreground loop. It is the only task that changes the device
// state at runtime.
type Menu struct {
	state   *devstate.State
	events  *button.Events
	display Display
	items   []Item
	logger  *slog.Logger

	screen screen
	item   int
	option int
}

// New creates a menu showing the counter screen. Items without options are
// dropped, and DefaultItems is used when none remain.
func New(state *devstate.State, events *button.Events, display Display, items []Item, logger *slog.Logger) *Menu {
	items = usableItems(items, logger)

	return &Menu{
		state:   state,
		events:  events,
		display: display,
		items:   items,
		logger:  logger,
	}
}

// usableItems drops items without options. DefaultItems is used when nothing
// is left.
func usableItems(items []Item, logger *slog.Logger) []Item {
	usable := make([]Item, 0, len(items))
	for _, item := range items {
		if len(item.Options) == 0 {
			logger.Warn("dropping menu item without options", "item", item.Title)
			continue
		}
		usable = append(usable, item)
	}
	if len(usable) == 0 {
		return DefaultItems
	}
	return usable
}

// Run renders the current screen and handles one event per iteration until
// ctx is canceled.
func (m *Menu) Run(ctx context.Context) error {
	for {
		m.render()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events.C():
			m.handle(ev)
		}
	}
}

func (m *Menu) handle(ev button.Event) {
	m.logger.Debug("menu event", "screen", m.screen, "event", ev)

	switch m.screen {
	case countScreen:
		switch ev {
		case button.Press:
			m.addCount(1)
		case button.HoldHalf:
			m.addCount(-1)
		case button.HoldFull:
			m.screen = menuScreen
			m.item = 0
		}

	case menuScreen:
		switch ev {
		case button.Press:
			m.item = (m.item + 1) % len(m.items)
		case button.HoldHalf:
			m.screen = optionScreen
			m.option = m.activeOption()
		case button.HoldFull:
			m.screen = countScreen
		}

	case optionScreen:
		switch ev {
		case button.Press:
			m.option = (m.option + 1) % len(m.items[m.item].Options)
		case button.HoldHalf:
			m.apply(m.items[m.item].Options[m.option])
			m.screen = menuScreen
		case button.HoldFull:
			m.screen = menuScreen
		}
	}
}

func (m *Menu) addCount(delta int) {
	count := m.state.Count.Update(func(c devstate.Count) devstate.Count {
		return c.Add(delta)
	})
	m.logger.Debug("count changed", "count", count)
}

func (m *Menu) apply(opt Option) {
	cfg := m.state.Config.Update(opt.Apply)
	m.logger.Info(
		"applied setting",
		"item", m.items[m.item].Title,
		"option", opt.Label,
		"mode", cfg.Mode,
		"brightness", cfg.Brightness,
		"rate", cfg.Rate)
}

// activeOption returns the index of the option of the current item that is
// already in effect, or 0 if none is.
func (m *Menu) activeOption() int {
	cfg := m.state.Config.Read()
	for i, opt := range m.items[m.item].Options {
		if opt.Apply(cfg) == cfg {
			return i
		}
	}
	return 0
}

// lines returns the text of the current screen.
func (m *Menu) lines() []string {
	switch m.screen {
	case menuScreen:
		return []string{"Menu", "> " + m.items[m.item].Title}
	case optionScreen:
		item := m.items[m.item]
		return []string{item.Title, "> " + item.Options[m.option].Label}
	default:
		count := m.state.Count.Read()
		return []string{CountTitle, strconv.FormatUint(uint64(count), 10)}
	}
}

func (m *Menu) render() {
	if err := m.display.Show(m.lines()...); err != nil {
		m.logger.Warn(
			"failed to update display",
			"screen", m.screen,
			"error", err)
	}
}
