package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/pomelodb/pomelo"
)

var file = flag.String("file", "pomelo.db", "store file path")

func main() {
	flag.Parse()

	db, err := pomelo.Open(*file, nil)
	if err != nil {
		log.Fatalf("failed to open: %v", err)
	}
	defer db.Close()

	args := flag.Args()
	if len(args) == 0 {
		printStats(db)
		return
	}

	switch args[0] {
	case "put":
		if len(args) < 2 {
			log.Fatalf("usage: pomelo put <data>")
		}
		id, err := db.Insert([]byte(args[1]))
		if err != nil {
			log.Fatalf("insert failed: %v", err)
		}
		fmt.Println(id)

	case "get":
		data, err := db.Get(parseID(args))
		if err != nil {
			log.Fatalf("get failed: %v", err)
		}
		os.Stdout.Write(append(data, '\n'))

	case "del":
		if err := db.Remove(parseID(args)); err != nil {
			log.Fatalf("remove failed: %v", err)
		}

	case "stats":
		printStats(db)

	default:
		log.Fatalf("unknown command '%s' (want put/get/del/stats)", args[0])
	}
}

func parseID(args []string) pomelo.ObjectID {
	if len(args) < 2 {
		log.Fatalf("usage: pomelo %s <id>", args[0])
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		log.Fatalf("invalid id '%s': %v", args[1], err)
	}
	return pomelo.ObjectID(id)
}

func printStats(db *pomelo.DB) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(db.Stats())
}
