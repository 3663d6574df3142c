// Package assets embeds the browser client and the page template.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

//go:embed templates/index.html
var indexTemplate string

// ClientFS returns the embedded client files, served under /assets/.
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the browser JavaScript.
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/mathwalk.js")
}

// GetClientCSS returns the browser stylesheet.
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/mathwalk.css")
}

// IndexTemplate returns the html/template source of the tutorial shell.
func IndexTemplate() string {
	return indexTemplate
}
