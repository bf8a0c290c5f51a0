package abi

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

func hostOS() string { return "linux" }

func hostArch() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname failed: %w", err)
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}

// hostABISignature probes the runtime glibc version. getconf reports it
// as "glibc <version>".
func hostABISignature() (string, error) {
	out, err := exec.Command("getconf", "GNU_LIBC_VERSION").Output()
	if err != nil {
		return "", fmt.Errorf("could not determine glibc version: %w", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return "", fmt.Errorf("could not determine glibc version: unexpected getconf output %q", strings.TrimSpace(string(out)))
	}
	return "gcc-libstdc++-" + fields[1] + "-cxx11_abi", nil
}
