package server

import (
	"log"
	"net/http"
)

// Handler builds the gateway's single route: the /ws voice pipeline
// endpoint. There is no REST surface and no served UI in scope: the
// browser client is out-of-process and talks only the wire protocol.
func Handler(adapters Adapters) http.Handler {
	mux := http.NewServeMux()
	registerWSRoute(mux, adapters)
	return mux
}

// Serve starts the gateway listening on addr.
func Serve(addr string, adapters Adapters) error {
	log.Printf("voxrelay gateway listening on %s", addr)
	return http.ListenAndServe(addr, Handler(adapters))
}
