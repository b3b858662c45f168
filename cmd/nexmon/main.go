// nexmon connects to a Nextion display, logs every event the display
// emits, and forwards commands typed on stdin.
//
// Usage:
//
//	nexmon -device /dev/ttyUSB0 [-baud 9600] [options]
//	nexmon -tcp 127.0.0.1:5480
//	nexmon -config nexmon.toml
//
// Options:
//
//	-config string  TOML configuration file
//	-device string  Serial device path
//	-baud int       Baud rate (default 9600)
//	-tcp string     Connect to a simulated display over TCP instead
//	-scan           Try every supported baud rate until the handshake passes
//	-debug          Enable frame-level tracing
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"nextion-host/pkg/display"
	"nextion-host/pkg/protocol"
	"nextion-host/pkg/serial"
	"nextion-host/pkg/widget"
)

type fileConfig struct {
	Serial struct {
		Device string `toml:"device"`
		Baud   int    `toml:"baud"`
		TCP    string `toml:"tcp"`
		Scan   bool   `toml:"scan"`
	} `toml:"serial"`
	Monitor struct {
		// PollInterval is the idle delay between drive passes.
		PollInterval duration `toml:"poll_interval"`
	} `toml:"monitor"`
	// Widgets names the touch-reactive objects of the display project so
	// their events are logged by object name instead of raw ids.
	Widgets []widgetConfig `toml:"widget"`
}

type widgetConfig struct {
	Page      int    `toml:"page"`
	Component int    `toml:"component"`
	Name      string `toml:"name"`
	PageName  string `toml:"page_name"`
}

// duration lets TOML carry values like "2ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	cfg.Serial.Baud = serial.DefaultBaudRate
	cfg.Monitor.PollInterval.Duration = 2 * time.Millisecond
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, wc := range cfg.Widgets {
		if wc.Page < 0 || wc.Page > 255 {
			return cfg, fmt.Errorf("widget %q: page %d out of range 0-255", wc.Name, wc.Page)
		}
		if wc.Component < 0 || wc.Component > 255 {
			return cfg, fmt.Errorf("widget %q: component %d out of range 0-255", wc.Name, wc.Component)
		}
	}
	return cfg, nil
}

// openPort opens the transport named by cfg: TCP when set, serial
// otherwise.
func openPort(cfg fileConfig, baud int) (*serial.Port, error) {
	if cfg.Serial.TCP != "" {
		return serial.OpenTCP(cfg.Serial.TCP, 10*time.Second)
	}
	device, err := serial.ResolveDevice(cfg.Serial.Device)
	if err != nil {
		return nil, err
	}
	scfg := serial.DefaultConfig()
	scfg.Device = device
	scfg.BaudRate = baud
	return serial.Open(scfg)
}

// connectScan tries every supported baud rate until the connect handshake
// answers. Each attempt reopens the port, since the rate is a termios
// property.
func connectScan(cfg fileConfig, log zerolog.Logger) (*serial.Port, *display.Engine, string, error) {
	for _, baud := range serial.SupportedBaudRates {
		port, err := openPort(cfg, baud)
		if err != nil {
			return nil, nil, "", err
		}
		eng := display.New(port, display.Config{Logger: &log})
		details, err := eng.Connect()
		if err == nil {
			log.Info().Int("baud", baud).Msg("handshake passed")
			return port, eng, details, nil
		}
		port.Close()
		log.Debug().Int("baud", baud).Err(err).Msg("handshake failed")
	}
	return nil, nil, "", errors.New("no supported baud rate answered the handshake")
}

func run() error {
	configFile := flag.String("config", "", "TOML configuration file")
	device := flag.String("device", "", "serial device path")
	baud := flag.Int("baud", 0, "baud rate")
	tcp := flag.String("tcp", "", "TCP address of a simulated display")
	scan := flag.Bool("scan", false, "scan supported baud rates")
	debug := flag.Bool("debug", false, "enable frame-level tracing")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *tcp != "" {
		cfg.Serial.TCP = *tcp
	}
	if *scan {
		cfg.Serial.Scan = true
	}
	if cfg.Serial.Device == "" && cfg.Serial.TCP == "" {
		flag.Usage()
		return errors.New("a -device or -tcp is required")
	}

	var (
		port    *serial.Port
		eng     *display.Engine
		details string
	)
	if cfg.Serial.Scan && cfg.Serial.TCP == "" {
		port, eng, details, err = connectScan(cfg, log)
		if err != nil {
			return err
		}
	} else {
		port, err = openPort(cfg, cfg.Serial.Baud)
		if err != nil {
			return err
		}
		eng = display.New(port, display.Config{Logger: &log})
		details, err = eng.Connect()
		if err != nil {
			port.Close()
			return fmt.Errorf("connect: %w", err)
		}
	}
	defer port.Close()

	log.Info().Str("device", port.Device()).Str("details", details).Msg("display connected")

	if err := eng.Init(); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	eng.OnStarted(func() { log.Warn().Msg("display restarted") })
	eng.OnBufferOverflow(func() { log.Warn().Msg("display dropped serial data") })
	eng.OnPageChanged(func(page byte) { log.Info().Uint8("page", page).Msg("page changed") })
	eng.OnTouchCoordinate(func(c protocol.Coordinate) {
		log.Info().Uint16("x", c.X).Uint16("y", c.Y).Bool("pressed", c.Pressed).Msg("touch coordinate")
	})
	eng.OnSleepTouchCoordinate(func(c protocol.Coordinate) {
		log.Info().Uint16("x", c.X).Uint16("y", c.Y).Msg("touch in sleep mode")
	})
	eng.OnAutoSleep(func() { log.Info().Msg("display entered sleep") })
	eng.OnAutoWake(func() { log.Info().Msg("display woke up") })
	eng.OnReady(func() { log.Info().Msg("display ready") })
	eng.OnUpgradeStarted(func() { log.Warn().Msg("display started microSD upgrade") })
	eng.SetTouchDispatcher(buildTouchDispatcher(eng, cfg.Widgets, log))

	// Stdin lines become display commands.
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(cfg.Monitor.PollInterval.Duration)
	defer tick.Stop()

	for {
		select {
		case <-sig:
			st := eng.Stats()
			log.Info().
				Uint64("frames", st.FramesReceived).
				Uint64("overflows", st.Overflows).
				Uint64("expired", st.CommandsExpired).
				Uint64("mismatched", st.RepliesMismatched).
				Uint64("rejected", st.QueueRejects).
				Msg("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if err := sendLine(eng, line, log); err != nil {
				return err
			}
		case <-tick.C:
			if err := eng.Drive(); err != nil {
				return fmt.Errorf("drive: %w", err)
			}
		}
	}
}

// sendLine sends one typed command. "get" queries print their reply;
// everything else is fire-and-forget with the ack logged.
func sendLine(eng *display.Engine, line string, log zerolog.Logger) error {
	if strings.HasPrefix(line, "get ") {
		if err := eng.SendCommand(line); err != nil {
			return err
		}
		// A query can answer with either reply type; accept a number
		// first and fall back to text.
		if v, err := eng.RecvNumber(0); err == nil {
			log.Info().Int32("value", v).Str("cmd", line).Msg("reply")
			return nil
		}
		eng.Reset()
		if err := eng.SendCommand(line); err != nil {
			return err
		}
		s, err := eng.RecvText(0, true)
		if err != nil {
			log.Error().Err(err).Str("cmd", line).Msg("query failed")
			return nil
		}
		log.Info().Str("value", s).Str("cmd", line).Msg("reply")
		return nil
	}

	if err := eng.SendCommand(line); err != nil {
		return err
	}
	if err := eng.RecvAck(0); err != nil {
		log.Error().Err(err).Str("cmd", line).Msg("command rejected")
	}
	return nil
}

// buildTouchDispatcher returns a widget registry for the configured
// objects, falling back to a raw-id logger when none are named.
func buildTouchDispatcher(eng *display.Engine, cfgs []widgetConfig, log zerolog.Logger) display.TouchDispatcher {
	if len(cfgs) == 0 {
		return touchLogger{log}
	}
	reg := widget.NewRegistry()
	for _, wc := range cfgs {
		w := widget.NewOnPage(eng, byte(wc.Page), byte(wc.Component), wc.PageName, wc.Name)
		name := w.FullName()
		w.OnPush(func() { log.Info().Str("widget", name).Msg("pushed") })
		w.OnPop(func() { log.Info().Str("widget", name).Msg("released") })
		reg.Add(w)
	}
	return reg
}

type touchLogger struct {
	log zerolog.Logger
}

func (t touchLogger) DispatchTouch(page, component byte, pressed bool) {
	t.log.Info().Uint8("page", page).Uint8("component", component).
		Bool("pressed", pressed).Msg("touch event")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nexmon: %v\n", err)
		os.Exit(1)
	}
}
