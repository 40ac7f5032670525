package main

import (
	"fmt"

	"github.com/hadlocna/PaperDrop/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
