package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"alphasniper/cmd/engine"
	"alphasniper/cmd/syncer"
	"alphasniper/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Alpha-Sniper CMD"
	app.Usage = "The Alpha-Sniper trading control plane command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		syncerCMD,
		migrateCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the strategy engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the strategy tick loop service`,
	}
	syncerCMD = cli.Command{
		Name:        "syncer",
		Usage:       "run the data syncer",
		Action:      syncerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the market data syncer service`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "run migrations and exit",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run schema and data migrations, then exit`,
	}
)

func engineAction(_ *cli.Context) error {
	logrus.Info("Starting strategy engine CMD")

	svc := &engine.Engine{}
	if err := svc.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func syncerAction(_ *cli.Context) error {
	logrus.Info("Starting data syncer CMD")

	svc := &syncer.Syncer{}
	if err := svc.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func migrateAction(_ *cli.Context) error {
	logrus.Info("Running migrations")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Migrations failed")
		return err
	}

	logrus.Info("Migrations complete")
	return nil
}
