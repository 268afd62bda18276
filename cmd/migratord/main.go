package main

import (
	"fmt"
	"os"

	"github.com/surrealdb/migrator/contrib/migratord"
)

func main() {
	if err := migratord.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migratord:", err)
		os.Exit(1)
	}
}
