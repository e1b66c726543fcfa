// Command certgen writes a development CA and a server certificate signed by
// it. Start the server with -tls-cert certs/server.crt -tls-key certs/server.key
// and the client with -ca certs/ca.crt.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/atinyakov/mindease/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	flag.Parse()

	var list []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			list = append(list, h)
		}
	}

	if err := certgen.WriteDevCerts(*dir, list); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ Certificates generated into ./%s\n", *dir)
}
