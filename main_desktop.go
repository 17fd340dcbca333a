//go:build desktop

// Command lamina-desktop is the interactive slicing viewer. It needs the
// Wails runtime; build with: wails build -tags desktop
package main

import (
	"context"
	"embed"
	"log"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

//go:embed all:frontend/dist
var assets embed.FS

// startup is called by Wails on app startup. Scenes are pushed to the
// frontend from here on.
func (a *App) startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx
	a.emit = func(name string, data ...interface{}) {
		runtime.EventsEmit(ctx, name, data...)
	}
}

// OpenSTL asks for an STL file and loads it. An empty path means the
// dialog was cancelled.
func (a *App) OpenSTL() (string, error) {
	path, err := runtime.OpenFileDialog(a.runtimeContext(), runtime.OpenDialogOptions{
		Title: "Open STL",
		Filters: []runtime.FileFilter{
			{DisplayName: "STL files (*.stl)", Pattern: "*.stl;*.STL"},
		},
	})
	if err != nil || path == "" {
		return path, err
	}
	return path, a.LoadSTL(path)
}

func main() {
	app := NewApp()
	if app.initErr != nil {
		log.Fatalf("init: %v", app.initErr)
	}

	err := wails.Run(&options.App{
		Title:  "lamina",
		Width:  1280,
		Height: 800,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Fatalf("wails: %v", err)
	}
}
