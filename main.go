package main

import (
	_ "github.com/movementlabsxyz/suzuka/internal/alpnfix" // Disable ALPN enforcement for light nodes that don't support it

	"github.com/movementlabsxyz/suzuka/cmd/suzuka"
)

func main() {
	suzuka.Execute()
}
