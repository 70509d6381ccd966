// Package hardware takes best-effort snapshots of locally attached devices
// for storage alongside scan sessions. Enumeration failures degrade to an
// empty snapshot; the detection pipeline never depends on this data.
package hardware

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ptnguyen/devsentry/internal/model"
)

// Snapshot is the set of devices visible at one point in time.
type Snapshot struct {
	TakenAt time.Time
	Devices []model.HardwareDevice
}

const (
	devDir    = "/dev"
	sysUSBDir = "/sys/bus/usb/devices"
)

// Collect enumerates serial ports and USB devices. Each probe that fails
// logs a warning and contributes nothing.
func Collect(logger *zap.Logger) Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap := Snapshot{TakenAt: time.Now()}
	snap.Devices = append(snap.Devices, collectSerial(logger)...)
	snap.Devices = append(snap.Devices, collectUSB(logger)...)
	return snap
}

// collectSerial lists serial port device nodes.
func collectSerial(logger *zap.Logger) []model.HardwareDevice {
	var out []model.HardwareDevice
	for _, pattern := range []string{"ttyUSB*", "ttyACM*"} {
		matches, err := filepath.Glob(filepath.Join(devDir, pattern))
		if err != nil {
			logger.Warn("serial port glob failed", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		for _, path := range matches {
			out = append(out, model.HardwareDevice{
				Kind:     "serial",
				Name:     filepath.Base(path),
				DeviceID: path,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// collectUSB walks sysfs USB device entries, skipping hubs and root entries
// the way an operator would not consider them "devices".
func collectUSB(logger *zap.Logger) []model.HardwareDevice {
	entries, err := os.ReadDir(sysUSBDir)
	if err != nil {
		logger.Warn("usb enumeration unavailable", zap.Error(err))
		return nil
	}

	var out []model.HardwareDevice
	for _, e := range entries {
		name := e.Name()
		// Interface entries look like "1-2:1.0"; only whole devices matter.
		if strings.Contains(name, ":") || strings.HasPrefix(name, "usb") {
			continue
		}
		product := readSysfsAttr(filepath.Join(sysUSBDir, name, "product"))
		if product == "" {
			continue
		}
		if strings.Contains(strings.ToLower(product), "hub") {
			continue
		}
		out = append(out, model.HardwareDevice{
			Kind:        "usb",
			Name:        product,
			Description: readSysfsAttr(filepath.Join(sysUSBDir, name, "manufacturer")),
			DeviceID:    name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func readSysfsAttr(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
