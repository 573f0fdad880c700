// Package buildinfo holds build-time metadata injected at startup.
package buildinfo

const unknown = "unknown"

// Context is the version stamp of the running binary.
type Context struct {
	Version   string
	BuildDate string
}

// GetVersion returns the version, or "unknown" when unset.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date, or "unknown" when unset.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// Release is the release name reported to error telemetry.
func (c *Context) Release() string {
	return "annotator@" + c.GetVersion()
}
