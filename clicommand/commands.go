package clicommand

import "github.com/urfave/cli"

var FussCommands = []cli.Command{
	RequestCommand,
	TokenCommand,
	SignedRequestCommand,
}
