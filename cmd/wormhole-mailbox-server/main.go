// Command wormhole-mailbox-server runs the rendezvous (mailbox)
// server described in spec.md §6: it relays nameplate allocation and
// encrypted mailbox messages between two wormhole clients.
//
// Grounded on saljam-webwormhole's cmd/ww/server.go: same flag set
// shape, same gziphandler/autocert/http.Server wiring, with the
// slot-based WebRTC relay replaced by rendezvous.Server's full
// bind/allocate/claim/open/add/close/ping protocol.
package main

import (
	"crypto/tls"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/acme/autocert"

	"wormhole.dev/rendezvous"
)

var stats = struct {
	start *expvar.String
}{
	start: expvar.NewString("start"),
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "run the wormhole mailbox server\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "flags:\n")
		flag.PrintDefaults()
	}
	httpaddr := flag.String("http", ":4000", "http listen address")
	httpsaddr := flag.String("https", "", "https listen address (empty disables TLS)")
	whitelist := flag.String("hosts", "", "comma separated list of hosts for which to request let's encrypt certs")
	secretpath := flag.String("secrets", os.Getenv("HOME")+"/keys", "path to put let's encrypt cache")
	motd := flag.String("motd", "", "message of the day sent to every client on connect")
	flag.Parse()

	stats.start.Set(time.Now().UTC().Format(time.RFC3339))

	srv := rendezvous.NewServer(*motd)

	mux := http.NewServeMux()
	mux.Handle("/v1", srv.Handler())
	mux.Handle("/debug/vars", http.DefaultServeMux)
	mux.Handle("/metrics", promhttp.Handler())
	handler := gziphandler.GzipHandler(mux)

	httpServer := &http.Server{
		Addr:         *httpaddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Minute,
		IdleTimeout:  20 * time.Second,
	}

	if *httpsaddr == "" {
		log.Fatal(httpServer.ListenAndServe())
	}

	m := &autocert.Manager{
		Cache:      autocert.DirCache(*secretpath),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(strings.Split(*whitelist, ",")...),
	}
	httpServer.Handler = m.HTTPHandler(handler)
	httpsServer := &http.Server{
		Addr:         *httpsaddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Minute,
		IdleTimeout:  20 * time.Second,
		TLSConfig:    &tls.Config{GetCertificate: m.GetCertificate},
	}
	go func() { log.Fatal(httpsServer.ListenAndServeTLS("", "")) }()
	log.Fatal(httpServer.ListenAndServe())
}
