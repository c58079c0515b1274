//go:build linux

package hid

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// sysHidrawDir is where the kernel exposes hidraw class devices.
const sysHidrawDir = "/sys/class/hidraw"

// RawOpener enumerates and opens the deck via the Linux hidraw interface.
type RawOpener struct {
	VendorID  uint16
	ProductID uint16
}

// Find scans /sys/class/hidraw for a node matching the configured VID/PID.
// Enumeration only reads sysfs attributes; the device node stays closed.
func (o RawOpener) Find() (Info, bool) {
	entries, err := os.ReadDir(sysHidrawDir)
	if err != nil {
		return Info{}, false
	}

	for _, entry := range entries {
		uevent := filepath.Join(sysHidrawDir, entry.Name(), "device", "uevent")
		vid, pid, name, err := parseUevent(uevent)
		if err != nil {
			continue
		}
		if vid == o.VendorID && pid == o.ProductID {
			return Info{
				Path: filepath.Join("/dev", entry.Name()),
				Name: name,
			}, true
		}
	}
	return Info{}, false
}

// Open opens the hidraw node for report I/O. The node is opened
// non-blocking so read deadlines work on the file descriptor.
func (o RawOpener) Open(info Info) (Device, error) {
	f, err := os.OpenFile(info.Path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, info.Path, err)
	}
	return &rawDevice{f: f}, nil
}

// parseUevent extracts HID_ID and HID_NAME from a hidraw uevent file.
//
// HID_ID has the form "0003:0000FEED:00000803" (bus:vendor:product).
func parseUevent(path string) (vid, pid uint16, name string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close() //nolint:errcheck // read-only sysfs file

	var haveID bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "HID_ID="):
			parts := strings.Split(strings.TrimPrefix(line, "HID_ID="), ":")
			if len(parts) != 3 {
				continue
			}
			v, verr := strconv.ParseUint(parts[1], 16, 32)
			p, perr := strconv.ParseUint(parts[2], 16, 32)
			if verr != nil || perr != nil {
				continue
			}
			vid = uint16(v)
			pid = uint16(p)
			haveID = true
		case strings.HasPrefix(line, "HID_NAME="):
			name = strings.TrimPrefix(line, "HID_NAME=")
		}
	}
	if serr := scanner.Err(); serr != nil {
		return 0, 0, "", serr
	}
	if !haveID {
		return 0, 0, "", errors.New("no HID_ID in uevent")
	}
	return vid, pid, name, nil
}

// rawDevice wraps an open hidraw node.
type rawDevice struct {
	f *os.File
}

func (d *rawDevice) WriteReport(r Report) error {
	// Linux hidraw takes the bare report; no report ID prefix for
	// devices without numbered reports.
	if _, err := d.f.Write(r[:]); err != nil {
		return fmt.Errorf("%w: write: %v", ErrIO, err)
	}
	return nil
}

func (d *rawDevice) ReadReport(timeout time.Duration) (Report, bool, error) {
	var r Report
	if err := d.f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return r, false, fmt.Errorf("%w: deadline: %v", ErrIO, err)
	}

	n, err := d.f.Read(r[:])
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return r, false, nil
		}
		return r, false, fmt.Errorf("%w: read: %v", ErrIO, err)
	}
	if n == 0 {
		return r, false, nil
	}
	return r, true, nil
}

func (d *rawDevice) Close() error {
	return d.f.Close()
}
