// Command sheetengined runs the sheet engine's single-writer gateway
// daemon: one HTTP server per invocation, fronting one writer
// *sheetdb.Connection per category database.
package main

func main() {
	Execute()
}
