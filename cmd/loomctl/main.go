// Command loomctl dials, listens, and pings loom endpoints from the
// command line, exercising pkg/loomsession and pkg/loomtransport
// end-to-end.
package main

func main() {
	Execute()
}
