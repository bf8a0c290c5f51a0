package bundle

import (
	"context"
	"errors"
	"sort"

	fourdst "fourdst.dev/plugin"
)

// Report describes a bundle without loading anything: metadata, the two
// verification verdicts, and the screening result for every declared
// binary.
type Report struct {
	Metadata
	Host    Host
	Plugins []PluginReport
}

// PluginReport is the screening outcome for one plugin.
type PluginReport struct {
	Name string
	// Compatible is true when at least one binary survives screening.
	Compatible bool
	Binaries   []BinaryReport
}

// BinaryReport is the screening outcome for one declared binary.
type BinaryReport struct {
	Path         string
	Triplet      string
	ABISignature string
	Arch         string
	Compatible   bool
}

// Inspect unpacks and examines the bundle at path without loading any
// plugin. Unlike Open it tolerates unsigned, untrusted and
// ABI-incompatible bundles — those outcomes land in the report — and it
// releases the staging directory before returning.
func Inspect(ctx context.Context, path string, opts ...Option) (*Report, error) {
	o := buildOptions(opts)
	log := o.log.Sub("bundle")

	s, err := stageBundle(ctx, path, o, log)
	if err != nil {
		return nil, err
	}
	defer s.stage.Remove()

	// A fingerprint with no local key is a report outcome here, not a
	// failure.
	if s.verifyErr != nil && !errors.Is(s.verifyErr, fourdst.ErrUntrustedKey) {
		return nil, s.verifyErr
	}

	report := &Report{
		Metadata: Metadata{
			Name:      s.man.Name,
			Version:   s.man.Version,
			Author:    s.man.Author,
			Comment:   s.man.Comment,
			BundledOn: s.man.BundledOn,
			Signed:    s.signed,
			Trusted:   s.trusted,
		},
		Host: s.host,
	}

	names := make([]string, 0, len(s.man.Plugins))
	for name := range s.man.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := s.man.Plugins[name]
		pr := PluginReport{Name: name}

		surviving := make(map[string]bool)
		for _, bin := range s.survivors[name] {
			surviving[bin.Path] = true
		}

		for _, bin := range entry.Binaries {
			compatible := surviving[bin.Path]
			pr.Binaries = append(pr.Binaries, BinaryReport{
				Path:         bin.Path,
				Triplet:      bin.Platform.Triplet,
				ABISignature: bin.Platform.ABISignature,
				Arch:         bin.Platform.Arch,
				Compatible:   compatible,
			})
			if compatible {
				pr.Compatible = true
			}
		}

		report.Plugins = append(report.Plugins, pr)
	}

	return report, nil
}
