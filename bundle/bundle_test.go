package bundle

import (
	"archive/zip"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fourdst "fourdst.dev/plugin"
	"fourdst.dev/plugin/crypt"
	"fourdst.dev/plugin/internal/loader"
	"fourdst.dev/plugin/manager"
)

var testHost = Host{
	Arch:         "x86_64",
	OS:           "linux",
	Triplet:      "x86_64-linux",
	ABISignature: "gcc-libstdc++-2.35-cxx11_abi",
}

// binarySpec declares one binary entry for the fixture manifest.
type binarySpec struct {
	Path    string
	Triplet string
	ABI     string
	Arch    string
}

// fixture builds signed bundle archives and the trusted key store to
// verify them against.
type fixture struct {
	t           *testing.T
	keyDir      string
	priv        ed25519.PrivateKey
	fingerprint string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	keyDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(keyDir, "author.pem"), pemBytes, 0o644))

	key, err := crypt.ParsePublicKey(pemBytes)
	require.NoError(t, err)

	return &fixture{t: t, keyDir: keyDir, priv: priv, fingerprint: key.Fingerprint()}
}

// buildBundle writes a zip archive with a manifest for plugins, signing
// it unless signed is false. tamper mutates file contents after signing.
func (f *fixture) buildBundle(plugins map[string][]binarySpec, files map[string]string, signed bool, tamper func(map[string]string)) string {
	f.t.Helper()

	var signature string
	if signed {
		lines := make([]string, 0, len(files))
		for path, content := range files {
			lines = append(lines, path+":sha256:"+crypt.HashBytes([]byte(content)))
		}
		sort.Strings(lines)
		payload := []byte(strings.Join(lines, "\n"))
		signature = hex.EncodeToString(ed25519.Sign(f.priv, payload))
	}

	var sb strings.Builder
	sb.WriteString("bundleName: sensors\n")
	sb.WriteString("bundleVersion: 2.1.0\n")
	sb.WriteString("bundleAuthor: Jane Doe\n")
	sb.WriteString("bundleComment: Example sensor plugins\n")
	sb.WriteString("bundledOn: \"2025-06-01T12:00:00Z\"\n")
	if signed {
		sb.WriteString("bundleSignature:\n")
		sb.WriteString("  signature: \"" + signature + "\"\n")
		sb.WriteString("  keyFingerprint: \"" + f.fingerprint + "\"\n")
	}
	sb.WriteString("bundlePlugins:\n")

	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString("  " + name + ":\n")
		sb.WriteString("    binaries:\n")
		for _, bin := range plugins[name] {
			sb.WriteString(fmt.Sprintf(`      - path: %s
        platform:
          triplet: %s
          abi_signature: %s
          arch: %s
`, bin.Path, bin.Triplet, bin.ABI, bin.Arch))
		}
	}

	if tamper != nil {
		tamper(files)
	}

	archivePath := filepath.Join(f.t.TempDir(), "sensors.fbundle")
	out, err := os.Create(archivePath)
	require.NoError(f.t, err)
	writer := zip.NewWriter(out)

	w, err := writer.Create("manifest.yaml")
	require.NoError(f.t, err)
	_, err = w.Write([]byte(sb.String()))
	require.NoError(f.t, err)

	for path, content := range files {
		w, err := writer.Create(path)
		require.NoError(f.t, err)
		_, err = w.Write([]byte(content))
		require.NoError(f.t, err)
	}

	require.NoError(f.t, writer.Close())
	require.NoError(f.t, out.Close())
	return archivePath
}

func compatibleBinary(module string) []binarySpec {
	return []binarySpec{{
		Path:    "bin/linux/" + module,
		Triplet: testHost.Triplet,
		ABI:     "gcc-libstdc++-2.33-cxx11_abi",
		Arch:    testHost.Arch,
	}}
}

func foreignBinary(module string) []binarySpec {
	return []binarySpec{{
		Path:    "bin/macos/" + module,
		Triplet: "arm64-macos",
		ABI:     "clang-libc++-14.0-libc++_abi",
		Arch:    "arm64",
	}}
}

type sensorPlugin struct {
	fourdst.Base
}

func registerModule(t *testing.T, moduleName, pluginName string) {
	t.Helper()
	loader.RegisterStatic(moduleName,
		func() fourdst.Plugin { return &sensorPlugin{Base: fourdst.NewBase(pluginName, "2.1.0")} },
		func(fourdst.Plugin) {},
	)
	t.Cleanup(func() { loader.UnregisterStatic(moduleName) })
}

func testManager() *manager.Manager {
	return manager.New(manager.WithLoader(loader.StaticLoader{}))
}

func stageDirs(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "fourdst-bundle-*"))
	require.NoError(t, err)
	return matches
}

func TestOpen_SignedAndTrusted(t *testing.T) {
	f := newFixture(t)
	registerModule(t, "libnoise.so", "NoiseFilter")
	registerModule(t, "libscale.so", "ScaleTransform")

	path := f.buildBundle(
		map[string][]binarySpec{
			"noise_filter":    compatibleBinary("libnoise.so"),
			"scale_transform": compatibleBinary("libscale.so"),
		},
		map[string]string{
			"bin/linux/libnoise.so": "noise module",
			"bin/linux/libscale.so": "scale module",
		},
		true, nil,
	)

	mgr := testManager()
	b, err := Open(context.Background(), path, AllCompatible,
		WithManager(mgr), WithKeyDir(f.keyDir), WithHost(testHost))
	require.NoError(t, err)
	defer b.Close()
	defer mgr.Shutdown()

	assert.True(t, b.Signed())
	assert.True(t, b.Trusted())
	assert.Equal(t, "sensors", b.Name())
	assert.Equal(t, "2.1.0", b.Version())
	assert.Equal(t, "Jane Doe", b.Author())
	assert.Equal(t, "Example sensor plugins", b.Comment())
	assert.Equal(t, "2025-06-01T12:00:00Z", b.BundledOn())
	assert.Equal(t, testHost, b.Host())

	assert.Equal(t, []string{"NoiseFilter", "ScaleTransform"}, b.PluginNames())
	assert.True(t, b.Has("NoiseFilter"))
	assert.False(t, b.Has("Unknown"))
	assert.True(t, mgr.Has("NoiseFilter"))
	assert.True(t, mgr.Has("ScaleTransform"))

	// The staging directory lives until Close.
	stagePath := b.stage.Path()
	_, err = os.Stat(stagePath)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, err = os.Stat(stagePath)
	assert.True(t, os.IsNotExist(err))

	// Plugins belong to the manager, not the bundle.
	assert.True(t, mgr.Has("NoiseFilter"))
}

func TestOpen_TamperedBinary(t *testing.T) {
	f := newFixture(t)
	registerModule(t, "libnoise.so", "NoiseFilter")

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "original bytes"},
		true,
		func(files map[string]string) {
			files["bin/linux/libnoise.so"] = "tampered bytes"
		},
	)

	mgr := testManager()
	_, err := Open(context.Background(), path, AllCompatible,
		WithManager(mgr), WithKeyDir(f.keyDir), WithHost(testHost))
	require.Error(t, err)
	assert.ErrorIs(t, err, fourdst.ErrUntrustedBundle)
	assert.Empty(t, mgr.Names())
}

func TestOpen_Unsigned(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "noise module"},
		false, nil,
	)

	_, err := Open(context.Background(), path, AllCompatible,
		WithKeyDir(f.keyDir), WithHost(testHost), WithManager(testManager()))
	assert.ErrorIs(t, err, fourdst.ErrUntrustedBundle)
}

func TestOpen_UnknownAuthorKey(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "noise module"},
		true, nil,
	)

	// A key store with no matching key.
	_, err := Open(context.Background(), path, AllCompatible,
		WithKeyDir(t.TempDir()), WithHost(testHost), WithManager(testManager()))
	assert.ErrorIs(t, err, fourdst.ErrUntrustedKey)
}

func TestOpen_BundleNotFound(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.fbundle"), AllCompatible,
		WithHost(testHost), WithManager(testManager()))
	assert.ErrorIs(t, err, fourdst.ErrPathNotFound)
}

func TestOpen_MissingManifest(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "nomanifest.fbundle")
	out, err := os.Create(archivePath)
	require.NoError(t, err)
	writer := zip.NewWriter(out)
	w, err := writer.Create("bin/something.so")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, out.Close())

	_, err = Open(context.Background(), archivePath, AllCompatible,
		WithHost(testHost), WithManager(testManager()))
	assert.ErrorIs(t, err, fourdst.ErrMalformedBundle)
}

func TestOpen_PolicyAllCompatible(t *testing.T) {
	f := newFixture(t)
	registerModule(t, "libnoise.so", "NoiseFilter")

	// One plugin compatible, one only built for another platform.
	path := f.buildBundle(
		map[string][]binarySpec{
			"noise_filter": compatibleBinary("libnoise.so"),
			"mac_only":     foreignBinary("libmac.dylib"),
		},
		map[string]string{
			"bin/linux/libnoise.so":  "noise module",
			"bin/macos/libmac.dylib": "mac module",
		},
		true, nil,
	)

	mgr := testManager()
	_, err := Open(context.Background(), path, AllCompatible,
		WithManager(mgr), WithKeyDir(f.keyDir), WithHost(testHost))
	require.Error(t, err)
	assert.ErrorIs(t, err, fourdst.ErrABIIncompatible)
	assert.Empty(t, mgr.Names(), "nothing may load when the policy fails")

	// AnyCompatible accepts the same bundle and loads the survivor.
	b, err := Open(context.Background(), path, AnyCompatible,
		WithManager(mgr), WithKeyDir(f.keyDir), WithHost(testHost))
	require.NoError(t, err)
	defer b.Close()
	defer mgr.Shutdown()

	assert.Equal(t, []string{"NoiseFilter"}, b.PluginNames())
	assert.False(t, b.Has("mac_only"))
}

func TestOpen_AnyCompatibleWithNoSurvivors(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{"mac_only": foreignBinary("libmac.dylib")},
		map[string]string{"bin/macos/libmac.dylib": "mac module"},
		true, nil,
	)

	_, err := Open(context.Background(), path, AnyCompatible,
		WithKeyDir(f.keyDir), WithHost(testHost), WithManager(testManager()))
	assert.ErrorIs(t, err, fourdst.ErrABIIncompatible)
}

func TestOpen_ABIVersionGate(t *testing.T) {
	f := newFixture(t)
	registerModule(t, "libnew.so", "TooNew")

	// Requires a newer libstdc++ than the host has.
	path := f.buildBundle(
		map[string][]binarySpec{
			"too_new": {{
				Path:    "bin/linux/libnew.so",
				Triplet: testHost.Triplet,
				ABI:     "gcc-libstdc++-2.36-cxx11_abi",
				Arch:    testHost.Arch,
			}},
		},
		map[string]string{"bin/linux/libnew.so": "new module"},
		true, nil,
	)

	_, err := Open(context.Background(), path, AllCompatible,
		WithKeyDir(f.keyDir), WithHost(testHost), WithManager(testManager()))
	assert.ErrorIs(t, err, fourdst.ErrABIIncompatible)
}

func TestOpen_LoadFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	registerModule(t, "libnoise.so", "NoiseFilter")
	// libscale.so intentionally not registered: its load fails.

	path := f.buildBundle(
		map[string][]binarySpec{
			"noise_filter":    compatibleBinary("libnoise.so"),
			"scale_transform": compatibleBinary("libscale.so"),
		},
		map[string]string{
			"bin/linux/libnoise.so": "noise module",
			"bin/linux/libscale.so": "scale module",
		},
		true, nil,
	)

	before := stageDirs(t)

	mgr := testManager()
	_, err := Open(context.Background(), path, AllCompatible,
		WithManager(mgr), WithKeyDir(f.keyDir), WithHost(testHost))
	require.Error(t, err)
	assert.ErrorIs(t, err, fourdst.ErrLoadFailed)
	assert.Empty(t, mgr.Names(), "partially loaded plugins must be rolled back")

	assert.Len(t, stageDirs(t), len(before), "staging directory must be removed on failure")
}

func TestOpen_StageRemovedOnVerificationFailure(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "noise module"},
		false, nil,
	)

	before := stageDirs(t)
	_, err := Open(context.Background(), path, AllCompatible,
		WithKeyDir(f.keyDir), WithHost(testHost), WithManager(testManager()))
	require.Error(t, err)
	assert.Len(t, stageDirs(t), len(before))
}

func TestBundle_Unload(t *testing.T) {
	f := newFixture(t)
	registerModule(t, "libnoise.so", "NoiseFilter")

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "noise module"},
		true, nil,
	)

	mgr := testManager()
	b, err := Open(context.Background(), path, AllCompatible,
		WithManager(mgr), WithKeyDir(f.keyDir), WithHost(testHost))
	require.NoError(t, err)
	defer b.Close()

	require.True(t, mgr.Has("NoiseFilter"))
	b.Unload()
	assert.False(t, mgr.Has("NoiseFilter"))
	assert.Empty(t, b.PluginNames())
}

func TestInspect_Report(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{
			"noise_filter": compatibleBinary("libnoise.so"),
			"mac_only":     foreignBinary("libmac.dylib"),
		},
		map[string]string{
			"bin/linux/libnoise.so":  "noise module",
			"bin/macos/libmac.dylib": "mac module",
		},
		true, nil,
	)

	before := stageDirs(t)

	report, err := Inspect(context.Background(), path,
		WithKeyDir(f.keyDir), WithHost(testHost))
	require.NoError(t, err)

	assert.Equal(t, "sensors", report.Name)
	assert.True(t, report.Signed)
	assert.True(t, report.Trusted)

	require.Len(t, report.Plugins, 2)
	assert.Equal(t, "mac_only", report.Plugins[0].Name)
	assert.False(t, report.Plugins[0].Compatible)
	assert.Equal(t, "noise_filter", report.Plugins[1].Name)
	assert.True(t, report.Plugins[1].Compatible)
	require.Len(t, report.Plugins[1].Binaries, 1)
	assert.True(t, report.Plugins[1].Binaries[0].Compatible)

	assert.Len(t, stageDirs(t), len(before), "inspect must release its staging directory")
}

func TestInspect_ToleratesUntrusted(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "noise module"},
		false, nil,
	)

	report, err := Inspect(context.Background(), path,
		WithKeyDir(f.keyDir), WithHost(testHost))
	require.NoError(t, err)
	assert.False(t, report.Signed)
	assert.False(t, report.Trusted)
}

func TestInspect_ToleratesUnknownKey(t *testing.T) {
	f := newFixture(t)

	path := f.buildBundle(
		map[string][]binarySpec{"noise_filter": compatibleBinary("libnoise.so")},
		map[string]string{"bin/linux/libnoise.so": "noise module"},
		true, nil,
	)

	report, err := Inspect(context.Background(), path,
		WithKeyDir(t.TempDir()), WithHost(testHost))
	require.NoError(t, err)
	assert.True(t, report.Signed)
	assert.False(t, report.Trusted)
}
