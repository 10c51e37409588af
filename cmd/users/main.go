package main

import (
	"fmt"
	"os"

	"github.com/polkiloo/jobber/internal/app"
	"github.com/polkiloo/jobber/internal/di"
)

func main() {
	if err := app.Run(di.Users()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
