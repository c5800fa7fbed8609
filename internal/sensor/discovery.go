package sensor

import (
	"strings"

	"go.bug.st/serial/enumerator"
)

// DefaultPort is used when discovery finds nothing that looks like the device.
const DefaultPort = "/dev/ttyUSB0"

// portDetails is the subset of enumerator.PortDetails that discovery inspects.
// Listing is injected so tests do not need real hardware.
type portDetails struct {
	name    string
	product string
}

type portLister func() ([]portDetails, error)

func listSystemPorts() ([]portDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]portDetails, 0, len(ports))
	for _, p := range ports {
		out = append(out, portDetails{name: p.Name, product: p.Product})
	}
	return out, nil
}

// DiscoverPort probes available serial ports and returns the first one whose
// descriptor matches a known device signature: a product string containing
// "Arduino" or "USB Serial", or a Linux USB-serial device path (ttyUSB/ttyACM).
// Falls back to DefaultPort when nothing matches; this is a best-effort
// heuristic, not a guarantee the device is actually there.
func DiscoverPort() string {
	return discoverPort(listSystemPorts)
}

func discoverPort(list portLister) string {
	ports, err := list()
	if err != nil {
		return DefaultPort
	}
	for _, p := range ports {
		if strings.Contains(p.product, "Arduino") || strings.Contains(p.product, "USB Serial") {
			return p.name
		}
	}
	for _, p := range ports {
		if strings.Contains(p.name, "ttyUSB") || strings.Contains(p.name, "ttyACM") {
			return p.name
		}
	}
	return DefaultPort
}
