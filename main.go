// Conveyor is a toolkit for SDK release pipelines.
//
// It lints, plans and locally executes parameterized pipeline templates, and
// validates the metadata manifests of generated client libraries.
package main

import (
	"github.com/opnlabs/conveyor/cmd/conveyor"
)

func main() {
	conveyor.Execute()
}
