// Command docflow-server runs the docflow API server and its lock-guarded progress runner.
package main

import "github.com/nimburion/docflow/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{}))
}
