package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/roboclaw.go/pkg/cli/sh"
	"github.com/robotalks/roboclaw.go/pkg/config"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	conf, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}
	sh.New(conf).Run(flag.Args()...)
}
