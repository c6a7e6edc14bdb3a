// Command credanchor computes and checks proof hashes from the command line.
package main

import "os"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}
