package serial

import (
	"runtime"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBaudRateToSpeed(t *testing.T) {
	speed, custom, err := baudRateToSpeed(9600)
	if err != nil {
		t.Fatalf("baudRateToSpeed(9600): %v", err)
	}
	if speed != unix.B9600 || custom != 0 {
		t.Errorf("9600: speed=%#x custom=%d", speed, custom)
	}

	// 250000 has no Bxxx constant and needs the platform fallback.
	speed, custom, err = baudRateToSpeed(250000)
	switch runtime.GOOS {
	case "linux":
		if err != nil {
			t.Fatalf("baudRateToSpeed(250000): %v", err)
		}
		if speed != 0x1000|250000 || custom != 0 {
			t.Errorf("250000: speed=%#x custom=%d", speed, custom)
		}
	case "darwin":
		if err != nil {
			t.Fatalf("baudRateToSpeed(250000): %v", err)
		}
		if custom != 250000 {
			t.Errorf("250000: custom=%d, want IOSSIOSPEED path", custom)
		}
	}
}

func TestSupportedBaudRatesStartAtFactoryDefault(t *testing.T) {
	if len(SupportedBaudRates) == 0 || SupportedBaudRates[0] != DefaultBaudRate {
		t.Errorf("SupportedBaudRates = %v", SupportedBaudRates)
	}
	for _, baud := range SupportedBaudRates {
		if _, _, err := baudRateToSpeed(baud); err != nil {
			t.Errorf("baudRateToSpeed(%d): %v", baud, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate = %d", cfg.BaudRate)
	}
	if cfg.ReadTimeout <= 0 {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open with empty device succeeded")
	}
}
