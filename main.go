// The main package for the urlscraper executable.
package main

import (
	"github.com/JakeFAU/urlscraper/cmd"
)

func main() {
	cmd.Execute()
}
