// Command jn is the pipeline substrate's CLI: it parses an address,
// resolves any profile it references, assembles a chain of plugin
// processes, and streams NDJSON between them. All business logic lives
// in internal/*; this package and its sibling files only wire cobra
// flags to internal/runctx calls.
package main

import "os"

func main() {
	os.Exit(Execute())
}
