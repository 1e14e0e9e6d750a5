/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/allbin/serial-station/cmd"
)

func main() {
	cmd.Execute()
}
