package main

import (
	"context"
	"errors"

	_ "go.uber.org/automaxprocs"
)

func main() {
	app := mustBootstrapCrewAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
