// Command server runs the scripted replay server, which also hosts the web client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/janpfeifer/RedCard/internal/server"
	"k8s.io/klog/v2"
)

var (
	flagAddr   = flag.String("addr", "", "Address to listen on (default: auto-port on localhost)")
	flagScript = flag.String("script", "", "YAML script to replay (default: built-in demo loop)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	var script *server.Script
	if *flagScript != "" {
		var err error
		script, err = server.LoadScript(*flagScript)
		if err != nil {
			klog.Fatalf("Failed to load script: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := make(chan *server.ServerState, 1)
	go func() {
		state := <-started
		fmt.Printf("RedCard server listening on http://%s\n", state.Address)
	}()

	if err := server.Run(ctx, *flagAddr, script, started); err != nil {
		klog.Fatal(err)
	}
}
