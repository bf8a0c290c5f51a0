package abi

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func hostOS() string { return "macos" }

func hostArch() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname failed: %w", err)
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}

// hostABISignature uses the OS product version as the library version for
// compatibility checking.
func hostABISignature() (string, error) {
	version, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return "", fmt.Errorf("could not determine macOS version: %w", err)
	}
	return "clang-libc++-" + version + "-libc++_abi", nil
}
