package programs

import (
	"fmt"

	"github.com/0xADE/ade-progd/internal/settings"
)

// Disable hides a program from query results. It reports false when the
// program was already disabled.
func (p *Plugin) Disable(id string) (bool, error) {
	if p.settings.IsDisabled(id) {
		return false, nil
	}

	prog, ok := p.store.Find(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProgram, id)
	}

	// Record first so that a concurrent index commit re-applies the flag
	if !p.settings.Disable(prog.DisplayName(), prog.Location(), id) {
		return false, nil
	}
	p.store.MutateEnabled(id, false)
	p.logger.Info("program disabled", "id", id, "name", prog.DisplayName())

	p.persistSettings()
	return true, nil
}

// Enable removes the exclusion record of a program. It reports false when
// the program was not disabled.
func (p *Plugin) Enable(id string) (bool, error) {
	if !p.settings.Enable(id) {
		return false, nil
	}
	p.store.MutateEnabled(id, true)
	p.logger.Info("program enabled", "id", id)

	p.persistSettings()
	return true, nil
}

// Disabled lists the exclusion records
func (p *Plugin) Disabled() []settings.DisabledProgramSource {
	return p.settings.Disabled()
}

// AddSource adds or replaces a named directory scanned for executables. It
// is picked up by the next native scan.
func (p *Plugin) AddSource(src settings.ProgramSource) {
	p.settings.AddSource(src)
	p.logger.Info("program source saved", "name", src.Name, "location", src.Location, "enabled", src.Enabled)
	p.persistSettings()
}

func (p *Plugin) persistSettings() {
	if err := p.settingsFile.Save(p.settings); err != nil {
		p.logger.Error("failed to write settings", "path", p.settingsFile.Path, "err", err)
	}
}
