package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/janowagner/ospd-openvas/cmd/ospd-openvas/commands"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
