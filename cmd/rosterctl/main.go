// Command rosterctl imports roster CSV files from the command line.
package main

func main() {
	execute()
}
