package abi

// Host describes the running platform as the bundle loader screens it.
type Host struct {
	// Arch is the uname machine field, e.g. "x86_64" or "arm64".
	Arch string
	// OS is "linux" or "macos".
	OS string
	// Triplet is "<arch>-<os>".
	Triplet string
	// ABISignature is the probed host ABI string, e.g.
	// "gcc-libstdc++-2.35-cxx11_abi".
	ABISignature string
}

// Probe inspects the running system and assembles its Host description.
func Probe() (Host, error) {
	arch, err := hostArch()
	if err != nil {
		return Host{}, err
	}
	abiSig, err := hostABISignature()
	if err != nil {
		return Host{}, err
	}
	osName := hostOS()
	return Host{
		Arch:         arch,
		OS:           osName,
		Triplet:      arch + "-" + osName,
		ABISignature: abiSig,
	}, nil
}
