// Scandeck - Compliance Scan Coordinator
// Submit. Aggregate. Serve.
package main

func main() {
	Execute()
}
