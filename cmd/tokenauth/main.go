package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/bionicotaku/lingo-utils-tokenauth/internal/cli"
)

func main() {
	kc := kong.Parse(&cli.CLI,
		kong.Name("tokenauth"),
		kong.Description("Issue and validate allowlisted HS256 access tokens."),
	)
	kc.FatalIfErrorf(kc.Run(&cli.Config{EnvFile: cli.CLI.EnvFile, Out: os.Stdout}))
}
