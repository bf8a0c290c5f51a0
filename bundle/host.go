package bundle

import "fourdst.dev/plugin/internal/abi"

// Host describes the platform bundles are screened against.
type Host struct {
	// Arch is the uname machine field, e.g. "x86_64".
	Arch string
	// OS is "linux" or "macos".
	OS string
	// Triplet is "<arch>-<os>".
	Triplet string
	// ABISignature is the probed host ABI string, e.g.
	// "gcc-libstdc++-2.35-cxx11_abi".
	ABISignature string
}

// ProbeHost inspects the running system.
func ProbeHost() (Host, error) {
	probed, err := abi.Probe()
	if err != nil {
		return Host{}, err
	}
	return Host{
		Arch:         probed.Arch,
		OS:           probed.OS,
		Triplet:      probed.Triplet,
		ABISignature: probed.ABISignature,
	}, nil
}
