// Command airwave mirrors the system's default audio output across every
// adopted output endpoint, frame-synchronized and drift-corrected.
package main

func main() {
	Execute()
}
