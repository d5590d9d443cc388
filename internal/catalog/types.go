package catalog

import (
	"path/filepath"
	"strings"
)

// Kind tells which source produced a program
type Kind int

const (
	KindNative Kind = iota
	KindPackaged
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindPackaged:
		return "packaged"
	default:
		return "unknown"
	}
}

// Program is the capability set shared by native and packaged entries
type Program interface {
	Identifier() string
	DisplayName() string
	Location() string
	IsEnabled() bool
	Aliases() []string
	Kind() Kind
}

// Native represents an executable found on disk
type Native struct {
	Name             string   // Display name (executable base name)
	Path             string   // Absolute path to the executable
	Arguments        []string // Extra arguments passed on launch
	Description      string
	UniqueIdentifier string
	Enabled          bool
}

// NewNative builds an enabled native entry with its identifier derived from path and args
func NewNative(path string, args []string) *Native {
	path = filepath.Clean(path)
	return &Native{
		Name:             filepath.Base(path),
		Path:             path,
		Arguments:        args,
		UniqueIdentifier: NativeIdentifier(path, args),
		Enabled:          true,
	}
}

func (n *Native) Identifier() string  { return n.UniqueIdentifier }
func (n *Native) DisplayName() string { return n.Name }
func (n *Native) Location() string    { return n.Path }
func (n *Native) IsEnabled() bool     { return n.Enabled }
func (n *Native) Kind() Kind          { return KindNative }

// Aliases returns the executable file name when the display name differs from it
func (n *Native) Aliases() []string {
	base := filepath.Base(n.Path)
	if base == n.Name {
		return nil
	}
	return []string{base}
}

// Packaged represents an application installed through a package manager
// and exposed by a desktop entry
type Packaged struct {
	Title            string            // Display name
	Names            map[string]string // Localized names (locale -> name)
	GenericName      string
	Description      string
	Keywords         []string
	Categories       []string
	Family           string // Flatpak app id, snap instance name, or "system"
	AppID            string // Desktop file id
	DesktopFile      string // Path to the .desktop file
	PackageLocation  string
	Exec             string
	Terminal         bool
	UniqueIdentifier string
	Enabled          bool
}

func (p *Packaged) Identifier() string  { return p.UniqueIdentifier }
func (p *Packaged) DisplayName() string { return p.Title }
func (p *Packaged) Location() string    { return p.PackageLocation }
func (p *Packaged) IsEnabled() bool     { return p.Enabled }
func (p *Packaged) Kind() Kind          { return KindPackaged }

// Aliases returns the generic name and keywords
func (p *Packaged) Aliases() []string {
	aliases := make([]string, 0, len(p.Keywords)+1)
	if p.GenericName != "" && !strings.EqualFold(p.GenericName, p.Title) {
		aliases = append(aliases, p.GenericName)
	}
	for _, kw := range p.Keywords {
		if kw != "" {
			aliases = append(aliases, kw)
		}
	}
	return aliases
}

// LocalizedName returns the name for the given locale, or the default name
func (p *Packaged) LocalizedName(locale string) string {
	if locale == "" || p.Names == nil {
		return p.Title
	}
	if name, ok := p.Names[locale]; ok {
		return name
	}
	// Try language part (e.g., "en" from "en_US" or "en-US")
	if i := strings.IndexAny(locale, "_-"); i > 0 {
		if name, ok := p.Names[locale[:i]]; ok {
			return name
		}
	}
	return p.Title
}
