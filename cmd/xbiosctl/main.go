package main

import (
	"os"

	"github.com/xbiosforge/xbioscodec"
)

func main() {
	xbios.Main(os.Args)
}
