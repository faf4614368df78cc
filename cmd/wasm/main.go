package main

import (
	"flag"
	"os"

	"github.com/janpfeifer/RedCard/internal/frontend"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"k8s.io/klog/v2"
)

func main() {
	// Initialize klog for WASM, forcing logs to stderr (console)
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	if err := fs.Set("logtostderr", "true"); err != nil {
		klog.Warningf("failed to set logtostderr: %v", err)
	}
	klog.SetOutput(os.Stderr)
	klog.Infof("WASM started!")

	// A single page: login until joined, then the table.
	app.Route("/", func() app.Composer { return &frontend.Home{} })

	// Initialize the global state, which connects to the server in the browser.
	frontend.InitState()

	// When building for WEB (GOOS=js GOARCH=wasm), app.Run() executes the frontend logic
	app.RunWhenOnBrowser()
}
