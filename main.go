package main

import (
	"fmt"

	"github.com/privchat/privchat-sdk-go/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
