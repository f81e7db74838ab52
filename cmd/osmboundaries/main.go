// Command osmboundaries runs the admin-boundary download job service.
package main

import "github.com/MeKo-Tech/osmboundaries/internal/cmd"

func main() {
	cmd.Execute()
}
