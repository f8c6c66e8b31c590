// Command ripples maps the link structure reachable from a seed URL.
package main

import "github.com/JakeFAU/ripples/cmd"

func main() {
	cmd.Execute()
}
