package sensor

import (
	"errors"
	"testing"
)

func TestDiscoverPort_ProductMatch(t *testing.T) {
	list := func() ([]portDetails, error) {
		return []portDetails{
			{name: "/dev/ttyS0", product: "PCI Serial"},
			{name: "/dev/ttyACM0", product: "Arduino Uno"},
		}, nil
	}
	if got := discoverPort(list); got != "/dev/ttyACM0" {
		t.Errorf("discoverPort: got %q, want /dev/ttyACM0", got)
	}
}

func TestDiscoverPort_USBSerialProduct(t *testing.T) {
	list := func() ([]portDetails, error) {
		return []portDetails{
			{name: "/dev/ttyUSB1", product: "USB Serial Converter"},
		}, nil
	}
	if got := discoverPort(list); got != "/dev/ttyUSB1" {
		t.Errorf("discoverPort: got %q, want /dev/ttyUSB1", got)
	}
}

func TestDiscoverPort_PathFallback(t *testing.T) {
	// No product match: the first USB-serial looking path wins.
	list := func() ([]portDetails, error) {
		return []portDetails{
			{name: "/dev/ttyS0", product: ""},
			{name: "/dev/ttyUSB0", product: "some vendor"},
		}, nil
	}
	if got := discoverPort(list); got != "/dev/ttyUSB0" {
		t.Errorf("discoverPort: got %q, want /dev/ttyUSB0", got)
	}
}

func TestDiscoverPort_ProductBeatsPath(t *testing.T) {
	list := func() ([]portDetails, error) {
		return []portDetails{
			{name: "/dev/ttyUSB0", product: "other device"},
			{name: "/dev/ttyACM1", product: "Arduino Nano"},
		}, nil
	}
	if got := discoverPort(list); got != "/dev/ttyACM1" {
		t.Errorf("discoverPort: got %q, want /dev/ttyACM1", got)
	}
}

func TestDiscoverPort_NothingFound(t *testing.T) {
	list := func() ([]portDetails, error) {
		return []portDetails{{name: "/dev/ttyS0", product: ""}}, nil
	}
	if got := discoverPort(list); got != DefaultPort {
		t.Errorf("discoverPort: got %q, want %q", got, DefaultPort)
	}
}

func TestDiscoverPort_ListError(t *testing.T) {
	list := func() ([]portDetails, error) {
		return nil, errors.New("no permission")
	}
	if got := discoverPort(list); got != DefaultPort {
		t.Errorf("discoverPort on error: got %q, want %q", got, DefaultPort)
	}
}
