package main

import (
	"github.com/walguard/walguard/cmd/walguard"
)

func main() {
	walguard.Execute()
}
