// fuss makes signed requests to the Facebook Graph API from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/fussgo/fuss/clicommand"
	"github.com/fussgo/fuss/version"
	"github.com/urfave/cli"
)

const appHelpTemplate = `Usage:

  {{.Name}} <command> [options...]

Available commands are:

  {{range .Commands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
  {{end}}
Use "{{.Name}} <command> --help" for more information about a command.

`

func main() {
	cli.AppHelpTemplate = appHelpTemplate

	app := cli.NewApp()
	app.Name = "fuss"
	app.Usage = "Signed requests to the Facebook Graph API"
	app.Version = fmt.Sprintf("%s, build %s", version.Version(), version.BuildVersion())
	app.ErrWriter = os.Stderr
	app.Commands = clicommand.FussCommands

	// When no sub command is used
	app.Action = func(c *cli.Context) error {
		return cli.ShowAppHelp(c)
	}

	// When a sub command can't be found
	app.CommandNotFound = func(c *cli.Context, command string) {
		cli.ShowAppHelp(c) //nolint:errcheck // help is best effort
		fmt.Fprintf(c.App.ErrWriter, "\nfuss: unknown command '%s'\n", command)
		os.Exit(clicommand.ExitCodeError)
	}

	os.Exit(clicommand.PrintMessageAndReturnExitCode(os.Stderr, app.Run(os.Args)))
}
