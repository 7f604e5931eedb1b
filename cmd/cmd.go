package cmd

import (
	"github.com/catawampus/cwmpd/std/utils"
	cwmp "github.com/catawampus/cwmpd/tr/cmd"
	"github.com/spf13/cobra"
)

const banner = `
                                  _
   _____      ___ __ ___  _ __   __| |
  / __\ \ /\ / / '_ ' _ \| '_ \ / _' |
 | (__ \ V  V /| | | | | | |_) | (_| |
  \___| \_/\_/ |_| |_| |_| .__/ \__,_|
                         |_|

TR-069 CPE WAN Management Daemon
`

var CmdCwmpd = &cobra.Command{
	Use:     "cwmpd",
	Short:   "TR-069 CPE WAN Management Daemon",
	Long:    banner[1:],
	Version: utils.Version,
}

func init() {
	cobra.EnableCommandSorting = false
	CmdCwmpd.Root().CompletionOptions.HiddenDefaultCmd = true
	CmdCwmpd.PersistentFlags().BoolP("help", "h", false, "Print usage")
	CmdCwmpd.PersistentFlags().Lookup("help").Hidden = true

	CmdCwmpd.AddGroup(&cobra.Group{ID: "run", Title: "Daemons"})
	CmdCwmpd.AddCommand(cwmp.CmdCwmp)
}
