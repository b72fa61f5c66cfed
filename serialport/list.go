package serialport

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// Info describes a serial device found on the system.
type Info struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (i Info) String() string {
	if !i.IsUSB {
		return i.Name
	}

	s := fmt.Sprintf("%s [%s:%s]", i.Name, i.VID, i.PID)
	if i.Product != "" {
		s += " " + i.Product
	}
	if i.Serial != "" {
		s += " (" + i.Serial + ")"
	}

	return s
}

// List returns the serial devices present on the system, sorted by name.
func List() ([]Info, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list: %w", err)
	}

	infos := make([]Info, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, Info{
			Name:    p.Name,
			IsUSB:   p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos, nil
}
