package catalog

import (
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const (
	nativePrefix   = "native:"
	packagedPrefix = "packaged:"

	// SystemFamily is the package family of desktop entries installed by the
	// distribution package manager
	SystemFamily = "system"
)

// NativeIdentifier derives the identifier of an executable from its path and
// launch arguments. The path is cleaned so that "/usr/bin/../bin/vim" and
// "/usr/bin/vim" agree.
func NativeIdentifier(path string, args []string) string {
	d := xxhash.New()
	_, _ = d.WriteString(filepath.Clean(path))
	for _, arg := range args {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(arg)
	}
	return nativePrefix + strconv.FormatUint(d.Sum64(), 16)
}

// PackagedIdentifier derives the identifier of a packaged application from its
// package family and application id
func PackagedIdentifier(family, appID string) string {
	if family == "" {
		family = SystemFamily
	}
	return packagedPrefix + family + "!" + appID
}

// NewPackaged builds an enabled packaged entry with its identifier derived
// from family and app id
func NewPackaged(family, appID, title string) *Packaged {
	if family == "" {
		family = SystemFamily
	}
	return &Packaged{
		Title:            title,
		Family:           family,
		AppID:            appID,
		UniqueIdentifier: PackagedIdentifier(family, appID),
		Enabled:          true,
	}
}
