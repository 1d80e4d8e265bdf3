// Command validate_ontology checks an ontology file without starting the
// service, for use in CI before an ontology change ships.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kmflow/kmflow-backend/internal/ontology"
)

func main() {
	path := flag.String("path", "", "ontology yaml to validate (default: embedded)")
	flag.Parse()

	var (
		ont *ontology.Ontology
		err error
	)
	if *path != "" {
		ont, err = ontology.LoadFile(*path)
	} else {
		ont, err = ontology.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ok: version %s, %d node types, %d relationship types\n",
		ont.Version, len(ont.NodeTypes), len(ont.RelationshipTypes))
}
