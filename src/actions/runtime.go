package actions

import "github.com/stake-plus/commons/src/actions/core"

type (
	Manager = core.Manager
	Module  = core.Module
)

func NewManager(mods ...Module) *Manager {
	return core.NewManager(mods...)
}
