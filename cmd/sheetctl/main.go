// Command sheetctl is the operator CLI for the sheet engine: JSON
// migration and export, sheet/column schema management, and a doctor
// check. It operates directly on a category database file and must
// not run concurrently with sheetengined against the same category.
package main

func main() {
	Execute()
}
