// ./main.go
package main

import (
	"github.com/xkilldash9x/cdpipe/cmd"
)

func main() {
	cmd.Execute()
}
