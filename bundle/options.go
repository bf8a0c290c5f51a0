package bundle

import (
	"fourdst.dev/plugin/internal/logging"
	"fourdst.dev/plugin/manager"
)

type options struct {
	mgr    *manager.Manager
	log    *logging.Logger
	keyDir string
	host   *Host
}

// Option configures Open and Inspect.
type Option func(*options)

// WithManager loads plugins into mgr instead of the process-wide default
// manager.
func WithManager(mgr *manager.Manager) Option {
	return func(o *options) { o.mgr = mgr }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithKeyDir overrides the trusted key directory for signature
// verification.
func WithKeyDir(dir string) Option {
	return func(o *options) { o.keyDir = dir }
}

// WithHost overrides the probed host platform. Intended for screening
// bundles for foreign targets and for tests.
func WithHost(host Host) Option {
	return func(o *options) { o.host = &host }
}

func buildOptions(opts []Option) options {
	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mgr == nil {
		o.mgr = manager.Default()
	}
	return o
}
