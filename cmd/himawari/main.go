// Package main is the entry point for the himawari Discord bot.
package main

func main() {
	Execute()
}
