package root

import (
	deploycmd "github.com/erdbridge/erdbridge/apps/cli/cmd/deploy"
	historycmd "github.com/erdbridge/erdbridge/apps/cli/cmd/history"
	rollbackcmd "github.com/erdbridge/erdbridge/apps/cli/cmd/rollback"
)

func init() {
	Root().AddCommand(deploycmd.Command())
	Root().AddCommand(rollbackcmd.Command())
	Root().AddCommand(historycmd.Command())
}
