package main

import (
	"embed"
	"io/fs"
)

// The web interface served next to the UI websocket.
//
//go:embed frontend
var frontendFiles embed.FS

func getFrontendFS() fs.FS {
	sub, err := fs.Sub(frontendFiles, "frontend")
	if err != nil {
		panic(err)
	}
	return sub
}
