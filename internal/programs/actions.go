package programs

import (
	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/host"
	"github.com/0xADE/ade-progd/internal/query"
)

// Action is a context menu entry. Run returns whether the host should hide
// its window.
type Action struct {
	Title string
	Icon  string
	Run   func() bool
}

// LoadContextMenuActions returns the actions for a query result. The last
// action disables the program, or enables it again when it is disabled.
func (p *Plugin) LoadContextMenuActions(r query.Result) []Action {
	prog := r.Program
	if prog == nil {
		found, ok := p.store.Find(r.ID)
		if !ok {
			return nil
		}
		prog = found
	}

	actions := []Action{{
		Title: p.api.Translate(host.KeyOpenContainingFolder),
		Icon:  "Images/folder.png",
		Run: func() bool {
			_, err := p.launch(prog, p.launcher.OpenLocation)
			return err == nil
		},
	}}

	if prog.Kind() == catalog.KindNative {
		actions = append(actions, Action{
			Title: p.api.Translate(host.KeyRunInTerminal),
			Icon:  "Images/cmd.png",
			Run: func() bool {
				_, err := p.launch(prog, p.launcher.LaunchInTerminal)
				return err == nil
			},
		})
	}

	id := prog.Identifier()
	if p.settings.IsDisabled(id) {
		return append(actions, Action{
			Title: p.api.Translate(host.KeyEnableProgram),
			Icon:  "Images/enable.png",
			Run: func() bool {
				if _, err := p.Enable(id); err != nil {
					p.logger.Warn("failed to enable program", "id", id, "err", err)
				}
				return false
			},
		})
	}
	actions = append(actions, Action{
		Title: p.api.Translate(host.KeyDisableProgram),
		Icon:  "Images/disable.png",
		Run: func() bool {
			if _, err := p.Disable(id); err != nil {
				p.logger.Warn("failed to disable program", "id", id, "err", err)
				return false
			}
			p.api.ShowMsg(
				p.api.Translate(host.KeyDisableSuccess),
				p.api.Translate(host.KeyDisableSuccessDetail),
			)
			return false
		},
	})
	return actions
}
