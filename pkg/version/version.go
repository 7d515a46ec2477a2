// Package version exposes the module version.
package version

// Version is the current controller release.
const Version = "0.1.0"
