package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli"

	"github.com/donatehub/donatehub/dh-deployer/deployer"
	"github.com/donatehub/donatehub/dh-deployer/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	log.Root().SetHandler(
		log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stdout, log.TerminalFormat(true))),
	)

	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "dh-deployer"
	app.Usage = "DonateHub deployment tool"
	app.Description = "Deploys the DonateHub contracts, records them per network and verifies them on the block explorer"
	app.Commands = []cli.Command{
		{
			Name:   "deploy",
			Usage:  "Run the deployment steps against a network",
			Flags:  flags.DeployFlags,
			Action: deployer.Deploy,
		},
		{
			Name:   "verify",
			Usage:  "Verify a recorded deployment on the network's block explorer",
			Flags:  flags.VerifyFlags,
			Action: deployer.Verify,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}
