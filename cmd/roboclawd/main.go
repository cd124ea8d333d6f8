package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/roboclaw.go/pkg/config"
	"github.com/robotalks/roboclaw.go/pkg/node"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := config.Load()
	if err != nil {
		glog.Exit(err)
	}
	n, err := node.New(conf)
	if err != nil {
		glog.Exit(err)
	}
	n.RunOrFail()
}
